// Package mqtt provides MQTT client connectivity for Flashline Core.
//
// Flashline publishes its event stream (run progress, device presence, batch
// progress, zero-touch lifecycle) to a broker so line dashboards and other
// stations can follow along, and accepts remote run control commands.
//
//	Flashline Core -> MQTT Broker -> dashboards, MES, other stations
//
// The client wraps paho.mqtt.golang with:
//   - auto-reconnect with subscription restore
//   - Last Will and Testament so a crashed station shows as offline
//   - input validation (topic, QoS, 1 MB payload cap)
//   - panic recovery around message handlers
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.PublishJSON(mqtt.Topics{}.Event("plan.update"), entry, false)
package mqtt
