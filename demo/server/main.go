// Command demo-server hosts a single echo method over the transport
// stack in server/, for exercising the client demo end to end.
package main

import (
	"context"
	"log"
	"net"

	"github.com/stonefire-oss/qrpc-core/server"
)

func echoUnary(ctx context.Context, req []byte) ([]byte, error) {
	out := make([]byte, len(req))
	copy(out, req)
	return out, nil
}

func main() {
	srv := server.NewServer(server.WithMaxConcurrentCalls(64))
	srv.RegisterService("demo.Echo", server.MethodDesc{
		FullMethod: "Echo",
		Type:       server.Unary,
		Unary:      echoUnary,
	})

	ln, err := net.Listen("tcp", ":50051")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("demo-server listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
