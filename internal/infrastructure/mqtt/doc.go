// Package mqtt provides MQTT client connectivity for WattMCP Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// WattMCP uses MQTT as the southbound transport connecting the gateway to
// edge power-electronics devices. The broker decouples the synchronous REST
// surface from device firmware that only speaks pub/sub.
//
//	AI Agents → REST API → WattMCP Core ↔ MQTT Broker ↔ Edge Devices
//
// # Topic Hierarchy
//
// All topics live under a configurable prefix (default "wattagent"):
//
//	wattagent/device/{id}/telemetry        device → gateway readings
//	wattagent/device/{id}/status           device → gateway heartbeats
//	wattagent/device/{id}/command          gateway → device commands
//	wattagent/device/{id}/command/response device → gateway command results
//	wattagent/server/status                gateway online/offline (retained, LWT)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Gateway.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device telemetry
//	err = client.Subscribe(topics.AllDeviceTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceID, kind, err := topics.ParseDeviceTopic(topic)
//	        ...
//	        return nil
//	    })
//
//	// Publish a command
//	client.Publish(topics.DeviceCommand("mpsoc-01"), cmdJSON, 1, false)
package mqtt
