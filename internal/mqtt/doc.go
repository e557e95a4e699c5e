// Package mqtt mirrors the in-process event bus to an MQTT broker so
// dashboards and home automation can follow what the assistant is
// doing.
//
// Every bus event is published as JSON to
// <prefix>/events/<source>/<kind>. A retained daily summary goes to
// <prefix>/stats on a fixed interval, and <prefix>/availability
// carries "online" while connected. A will message flips it to
// "offline" on unexpected disconnects.
//
// The mirror also listens on <prefix>/command/cancel; any message there
// cancels the in-flight request. Inbound commands are rate limited.
//
// Connection management uses Eclipse Paho v2's [autopaho] package,
// which reconnects automatically.
package mqtt
