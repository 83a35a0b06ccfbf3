// Package client is a Go client for the emulator's device protocol.
//
// A Client holds one connection to one device port and issues requests
// strictly one at a time. Error responses are returned as *RemoteError so
// callers can match on the exception kind.
//
//	c, err := client.Dial(ctx, "localhost:5001", client.Options{})
//	if err != nil {
//	    return err
//	}
//	defer c.Disconnect()
//
//	payload, err := c.Call(ctx, "get_image", []any{0.1}, nil)
//	desc, pixels, err := client.ReadArray(shm.DefaultDir, payload)
package client
