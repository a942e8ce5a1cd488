// Package app wires a cluster member: a [cluster.Node] that runs the
// configured processing units on every envelope it receives, and a
// [dispatch.Dispatcher] that hands local messages to the cluster.
//
// # Basic Usage
//
//	app, err := app.Run(app.Config{
//	    Node: app.NodeConfig{
//	        ID:        "node-1",
//	        Addresses: []string{"orders"},
//	        Transport: natsTransport,
//	    },
//	    Executor: app.ExecutorConfig{
//	        Units: []unit.ProcessingUnit{validate, enrich},
//	    },
//	    Dispatch: app.DispatchConfig{
//	        QueueCapacity: 1024,
//	        Workers:       8,
//	        ReplyTimeout:  5 * time.Second,
//	        Producer:      forward,
//	        Failure:       deadLetter,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Hand a message to the cluster
//	err = app.Dispatch(ctx, message.New(payload))
//
//	// Graceful shutdown
//	app.Shutdown(ctx)
//
// # Multi-Node Clusters
//
// Every member serves the same addresses with the same units and codec.
// In SINGLE mode each message reaches exactly one member serving the
// target address; in ALL mode every member receives it. Each node also
// serves its own ID, so a target such as "header:node" can pin a message
// to a specific member.
package app
