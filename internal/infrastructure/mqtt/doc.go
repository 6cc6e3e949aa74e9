// Package mqtt publishes mapping results to an MQTT broker.
//
// The client wraps paho.mqtt.golang with auto-reconnect, a retained
// online/offline status on ipmap/status (with a Last Will for unclean
// disconnects) and tracked subscriptions that survive reconnects.
//
// Topic layout:
//
//	ipmap/mapping           retained JSON mapping keyed by Matter name
//	ipmap/device/{slug}     retained JSON record per matched device
//	ipmap/run               retained summary of the last run
//	ipmap/status            retained service status
//	ipmap/command/refresh   any message requests a new run (serve mode)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.Mapping(), payload)
package mqtt
