// Package influxdb records mapping results in InfluxDB v2.
//
// Each run writes one device_match point per matched device (tags source
// and target, fields score, ip, mac and run_id) and one mapping_run summary
// point. Graphing score per source over time shows when a rename on either
// side starts to erode a match.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.WritePoints(ctx, influxdb.NewRunPoint(summary))
package influxdb
