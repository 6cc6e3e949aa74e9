// Package homeassistant talks to a Home Assistant instance over its
// websocket API.
//
// A Conn authenticates with a long-lived access token and then issues
// numbered commands, reading messages until the result with the matching id
// arrives. Only the commands the mapper needs are implemented: the device
// and entity registry listings and persistent notifications.
//
// Client dials a fresh connection per operation, which suits the
// point-in-time snapshots the mapper takes:
//
//	client, err := homeassistant.New(homeassistant.Config{URL: url, Token: token})
//	snap, err := client.Snapshot(ctx)
//
// Every Snapshot failure wraps inventory.ErrInventoryUnavailable.
package homeassistant
