package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/uni159169/bfs/binlog"
	mbp "github.com/uni159169/bfs/mainboilerplate"
	"github.com/uni159169/bfs/rpc"
)

var Config = new(struct {
	Binlog struct {
		Dir        string   `long:"dir" env:"DIR" default:"binlog-data" description:"Directory of the log and checkpoint files"`
		Nodes      []string `long:"node" env:"NODES" env-delim:"," description:"Address of a replication pair member (specify twice)"`
		Self       string   `long:"self" env:"SELF" description:"Address of this node"`
		Role       string   `long:"role" env:"ROLE" default:"slave" choice:"master" choice:"slave" description:"Initial replication role"`
		SyncWrites bool     `long:"sync-writes" env:"SYNC_WRITES" description:"Sync the log file after each append"`
	} `group:"Binlog" namespace:"binlog" env-namespace:"BINLOG"`

	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type cmdServe struct{}

func (cmdServe) Execute([]string) error {
	mbp.InitLog(Config.Log)

	var bl = binlog.New(binlog.Config{
		Dir:        Config.Binlog.Dir,
		Nodes:      Config.Binlog.Nodes,
		Self:       Config.Binlog.Self,
		Role:       Config.Binlog.Role,
		SyncWrites: Config.Binlog.SyncWrites,
	}, func(addr string) binlog.Caller { return rpc.NewClient(addr) })

	// The standalone daemon has no embedding state machine; replayed and
	// replicated entries are durably logged and surfaced at debug level.
	bl.RegisterCallback(func(entry []byte) {
		log.WithField("bytes", len(entry)).Debug("applied entry")
	})
	mbp.Must(bl.Init(), "failed to initialize binlog")

	lis, err := net.Listen("tcp", Config.Binlog.Self)
	mbp.Must(err, "failed to bind listener", "addr", Config.Binlog.Self)
	log.WithField("addr", Config.Binlog.Self).Info("serving replication endpoint")

	var srv = &http.Server{Handler: rpc.NewServer(bl).Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var g, gCtx = errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		var sdCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sdCtx)
		return bl.Close()
	})
	return g.Wait()
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	var _, err = parser.AddCommand("serve", "Serve the binlog",
		"Serve the replicated binlog and its replication endpoint", &cmdServe{})
	mbp.Must(err, "failed to add serve command")

	mbp.MustParseArgs(parser)
}
