package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/ops"
	"main/pkg/wsconn"
	"main/pkg/wsrpc"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	endpoint := flag.String("endpoint", "", "WebSocket endpoint (overrides config)")
	callMethod := flag.String("call", "version", "Method to call after connecting")
	callParams := flag.String("params", "{}", "JSON params for the call")
	callTimeout := flag.Duration("call-timeout", 30*time.Second, "Deadline for the demo call")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "wsrpc/client",
			ServerAddress:   *pyroscopeAddr,
			Tags:            map[string]string{"env": "local"},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded := ops.Loaded{}
	if *configPath != "" {
		var err error
		loaded, err = ops.Load(*configPath)
		if err != nil {
			log.Fatalf("load config failed: %v", err)
		}
	}
	if *endpoint != "" {
		loaded.Endpoint = *endpoint
	}
	if loaded.Endpoint == "" {
		log.Fatal("no endpoint: pass -endpoint or -config")
	}

	metrics := obs.NewMetrics()

	dispatcher := wsrpc.NewDispatcher()
	dispatcher.Register("status", func(params json.RawMessage) {
		logs.Infof("status notification: %s", params)
	})

	rpcCfg := loaded.RPC
	rpcCfg.Dispatcher = dispatcher
	rpcCfg.Metrics = metrics
	client := wsrpc.NewClient(rpcCfg)

	connCfg := loaded.Connection
	connCfg.Dialer = wsconn.NewDialer(loaded.Endpoint)
	connCfg.Metrics = metrics
	connCfg.OnOpen = client.FlushQueue
	connCfg.OnMessage = client.Receive

	manager, err := wsconn.NewManager(connCfg)
	if err != nil {
		log.Fatalf("build manager failed: %v", err)
	}
	client.Attach(manager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go manager.Events().Run(ctx, func(e bus.Event) {
		if e.Err != nil {
			logs.Warnf("connection %s (attempt %d), err: %+v", e.State, e.Attempt, e.Err)
			return
		}
		logs.Infof("connection %s (attempt %d)", e.State, e.Attempt)
	})

	if err := manager.Connect(); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer manager.Destroy()

	go func() {
		var params any
		if err := json.Unmarshal([]byte(*callParams), &params); err != nil {
			logs.Errorf("invalid -params, err: %+v", err)
			return
		}
		callCtx, callCancel := context.WithTimeout(ctx, *callTimeout)
		defer callCancel()

		outcome, err := client.Call(callCtx, *callMethod, params)
		switch {
		case err != nil:
			logs.Errorf("call %s failed, err: %+v", *callMethod, err)
		case outcome.Cancelled:
			logs.Infof("call %s cancelled", *callMethod)
		default:
			logs.Infof("call %s result: %s", *callMethod, outcome.Result)
		}
	}()

	<-sys.Shutdown()

	snapshot := metrics.Snapshot()
	logs.Infof("shutdown: sockets=%d/%d reconnects=%d sent=%d received=%d resolved=%d timeouts=%d cancelled=%d",
		snapshot.SocketsOpened, snapshot.SocketsClosed, snapshot.Reconnects,
		snapshot.MessagesSent, snapshot.MessagesReceived,
		snapshot.RequestsResolved, snapshot.RequestsTimedOut, snapshot.RequestsCancelled,
	)
}
