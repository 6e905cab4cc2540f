package main

import (
	"context"
	"fmt"
	"log"
	"net"

	segdag "github.com/hupe1980/segdag"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/protocol"
	"github.com/hupe1980/segdag/testutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Server side: a full commit graph with a flushed master branch.
	server := segdag.NewMemDag()

	history := testutil.DrawDag(`
		A-B-C-D-E-F
		C-X-Y
	`)

	if err := server.AddHeadsAndFlush(ctx, history, testutil.V("F")); err != nil {
		log.Fatal(err)
	}
	if err := server.AddHeads(ctx, history, testutil.V("Y")); err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Server ---")
	fmt.Println("Commits:", server.All().Count())
	fmt.Println("Master:", server.MasterGroup().Count())

	// Serve the lazy protocol over an in-process pipe; a real setup
	// would pass a TCP or unix socket connection instead.
	serverConn, clientConn := net.Pipe()
	conn := protocol.Serve(ctx, serverConn, server.Service())
	defer func() { cancel(); <-conn.Done() }()

	rpc := protocol.NewJSONRPC2Client(ctx, clientConn)
	defer rpc.Close()

	// Client side: clone the master graph shape, resolve names lazily.
	data, err := rpc.CloneData(ctx)
	if err != nil {
		log.Fatal(err)
	}

	client := segdag.NewMemDag(segdag.WithRemote(rpc))
	if err := client.ImportCloneData(ctx, data); err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Clone ---")
	fmt.Println("Commits:", client.All().Count())
	fmt.Println("Bindings shipped:", len(data.IDMap))

	// Ancestry queries run locally on the cloned segments.
	ok, err := client.IsAncestor(ctx, testutil.V("B"), testutil.V("F"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("B is ancestor of F:", ok)

	// Resolving an id the clone did not name triggers one round trip.
	name, err := client.VertexName(ctx, model.Id(2))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Commit at id 2:", name)

	// Pull: the server advances, the client fast-forwards.
	extended := testutil.DrawDag("A-B-C-D-E-F-G-H")
	if err := server.AddHeadsAndFlush(ctx, extended, testutil.V("H")); err != nil {
		log.Fatal(err)
	}

	delta, err := server.PullFastForwardMaster(ctx, testutil.V("F"), testutil.V("H"))
	if err != nil {
		log.Fatal(err)
	}
	if err := client.ImportPullData(ctx, delta, testutil.Vs("H")); err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Pull ---")
	fmt.Println("Commits after pull:", client.All().Count())
}
