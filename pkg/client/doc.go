// Package client is the device-side hub client.
//
// A Client owns no goroutines. Every network exchange and every callback
// happens inside DoWork, which the host calls periodically (every 100ms or
// faster is recommended):
//
//	c, err := client.NewFromConnectionString(cs, client.MQTTTransport)
//	if err != nil {
//		return err
//	}
//	defer c.Destroy()
//
//	c.SetConnectionStatusCallback(onStatus, nil)
//	c.SendEventAsync(client.NewMessage([]byte(`{"t":21.5}`)), onSent, nil)
//
//	for range time.Tick(100 * time.Millisecond) {
//		c.DoWork()
//	}
//
// Within one DoWork call the client applies staged options, advances the
// connection state machine, sends the next frame of each operation kind,
// pumps inbound traffic, fires completions, then serves twin, cloud
// message, method and upload work in that order.
//
// A Client is not safe for concurrent use. Calling DoWork or Destroy from
// inside a callback panics with ErrReentrantCall.
package client
