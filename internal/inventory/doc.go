// Package inventory holds the device inventory snapshot read from the home
// controller and the pure functions that interpret it.
//
// A Snapshot is an immutable, point-in-time copy of the controller's device
// and entity registries. Nothing in this package talks to the controller;
// the snapshot is produced by a collaborator (the homeassistant client or a
// JSON dump on disk) and handed in as a value.
//
// # Key Types
//
//   - DeviceRecord: one raw device registry entry, optional fields as strings
//   - DeviceInfo: the normalised view derived by Extract
//   - Classifier: splits records into Matter sources and bridge targets
//
// # Sentinels
//
// Missing data is never represented as an empty string in DeviceInfo.
// Names fall back to Unknown and network identifiers to NotFound, so report
// formatting never has to special-case absent values.
//
// # Usage
//
//	snap, err := inventory.LoadSnapshot("registry.json")
//	if err != nil {
//	    return err
//	}
//	sources, targets := inventory.NewClassifier("matter", "leviton").Classify(snap.Devices)
//	for _, rec := range targets {
//	    info := snap.Info(rec)
//	    fmt.Println(info.DisplayName, info.IP, info.MAC)
//	}
package inventory
