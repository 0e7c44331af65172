package protocol_test

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type stdoutTransport struct{}

func (stdoutTransport) Send(frame []byte) error {
	fmt.Println(string(frame))
	return nil
}

func (stdoutTransport) Close(code int, reason string) error {
	fmt.Println("closed", code, reason)
	return nil
}

func ExampleRouter() {
	ns, err := messaging.NewNamespaceSet(messaging.Specification{
		"counter": {
			"increment": messaging.ClientToServer,
			"value":     messaging.ServerToClient,
		},
	})
	if err != nil {
		panic(err)
	}

	router := protocol.NewRouter()
	router.HandleFunc("counter.increment", func(c *protocol.Conn, m messaging.Message) (bool, error) {
		by, _ := m.Kwarg("by")
		n, err := by.(json.Number).Int64()
		if err != nil {
			return false, err
		}
		total, _ := c.Value("total")
		sum, _ := total.(int64)
		sum += n
		c.SetValue("total", sum)
		return true, c.Send("counter", "value", nil, messaging.Kwargs{"value": sum})
	})

	proto, err := protocol.New(ns, router, protocol.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		panic(err)
	}

	conn := proto.Accept("conn-1", stdoutTransport{})
	conn.OnConnect()
	conn.Process([]byte(`{"code":"counter.increment","args":[],"kwargs":{"by":2}}`))
	conn.Process([]byte(`{"code":"counter.increment","args":[],"kwargs":{"by":1}}`))
	conn.Process([]byte(`{"code":"counter.reset","args":[],"kwargs":{}}`))
	conn.OnDisconnect()

	// Output:
	// {"code":"counter.value","args":[],"kwargs":{"value":2}}
	// {"code":"counter.value","args":[],"kwargs":{"value":3}}
	// closed 3002 Unexistent or unavailable message
}
