// Package mqtt publishes Home Assistant MQTT discovery messages and
// per-cycle pool metric states. Every ZFS pool appears as a native HA
// device with one sensor entity per reported metric field and shared
// availability tracking.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection and backoff. On
// every (re-)connect it clears the announced-identity session (so
// retained discovery payloads are re-established even if the broker
// lost them) and publishes a birth message ("online") to the
// availability topic. A will message ensures the availability topic
// transitions to "offline" on unexpected disconnects; a graceful stop
// publishes "offline" explicitly before closing.
//
// Discovery and state publishing are independent: discovery config
// goes out once per identity per session, states go out every poll
// cycle, both retained so the hub recovers last-known values after its
// own restart.
package mqtt
