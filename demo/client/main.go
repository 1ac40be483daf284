// Command demo-client dials the demo server via the passthrough
// resolver and pick-first balancer, and issues one unary Echo call.
package main

import (
	"context"
	"log"
	"time"

	"github.com/stonefire-oss/qrpc-core/call"
	"github.com/stonefire-oss/qrpc-core/channel"
)

func main() {
	ch, err := channel.Dial("passthrough:///127.0.0.1:50051", channel.Args{})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, _, err := call.Invoke(ctx, ch, "/demo.Echo/Echo", []byte("hello"), call.ClientCallOptions{
		UserAgent: "qrpc-core-demo/1.0",
	})
	if err != nil {
		log.Fatalf("Echo: %v", err)
	}
	log.Printf("Echo replied: %s", resp)
}
