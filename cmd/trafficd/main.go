package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridroad/trafficd/pkg/blob"
	"github.com/gridroad/trafficd/pkg/engine"
	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/reports"
	"github.com/gridroad/trafficd/pkg/store"
	redisstore "github.com/gridroad/trafficd/pkg/store/redis"
)

func main() {
	fmt.Println(`{"level":"info","msg":"system_started","component":"trafficd"}`)

	config, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Printf(`{"level":"fatal","msg":"invalid_config","error":"%v"}`+"\n", err)
		os.Exit(1)
	}

	st, err := store.NewStore(config.DBPath)
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_init_store","error":"%v"}`+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"store_initialized","path":"%s"}`+"\n", config.DBPath)

	opts := []engine.Option{}
	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		opts = append(opts, engine.WithLeaseStore(redisstore.NewLeaseStore(client)))
		fmt.Printf(`{"level":"info","msg":"lease_store_enabled","addr":"%s"}`+"\n", config.RedisAddr)
	}
	if !config.RealTime {
		// Fast mode: tick as quickly as the loop allows.
		opts = append(opts, engine.WithTickInterval(time.Millisecond))
	}
	eng := engine.NewEngine(st, st, opts...)

	ctx := context.Background()
	net, err := st.GetNetwork(ctx, config.NetworkID)
	if errors.Is(err, store.ErrNotFound) {
		net, err = demoNetwork(config.NetworkID)
		if err == nil {
			err = st.SaveNetwork(ctx, net)
		}
		if err == nil {
			fmt.Printf(`{"level":"info","msg":"demo_network_created","network_id":"%s","vertices":%d,"edges":%d}`+"\n",
				net.ID, len(net.Vertices), len(net.Edges))
		}
	}
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_load_network","error":"%v"}`+"\n", err)
		os.Exit(1)
	}

	params := engine.DefaultParams()
	params.Seed = config.Seed
	params.DurationS = config.DurationS
	params.TimeStepS = config.StepS

	sess, err := eng.CreateSession(ctx, "trafficd session", net.ID, params)
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_create_session","error":"%v"}`+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"session_created","session_id":"%s","network_id":"%s","seed":%d}`+"\n",
		sess.ID, net.ID, sess.Params.Seed)

	go logIncidents(eng.SubscribeIncidents())
	stopped := make(chan struct{})
	go watchStateChanges(eng.SubscribeStateChanges(), stopped)

	if !eng.Start(ctx, sess.ID) {
		fmt.Println(`{"level":"fatal","msg":"failed_to_start_session"}`)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"session_started","session_id":"%s"}`+"\n", sess.ID)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		fmt.Printf(`{"level":"info","msg":"shutdown_initiated","signal":"%s"}`+"\n", sig)
		eng.Stop(ctx, sess.ID)
	case <-stopped:
		fmt.Println(`{"level":"info","msg":"session_completed"}`)
	}

	if metric, err := eng.CurrentMetrics(ctx, sess.ID); err == nil {
		fmt.Printf(`{"level":"info","msg":"final_state","step":%d,"completed_vehicles":%d,"completed_pedestrians":%d,"incidents":%d}`+"\n",
			metric.Step, metric.CompletedVehicles, metric.CompletedPedestrians, metric.TotalIncidents)
	}

	if config.ReportsDir != "" {
		writeReports(ctx, config.ReportsDir, sess.ID, st, eng)
	}

	if err := st.Close(); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_close_store","error":"%v"}`+"\n", err)
	} else {
		fmt.Println(`{"level":"info","msg":"store_closed"}`)
	}

	fmt.Println(`{"level":"info","msg":"shutdown_complete"}`)
}

// writeReports renders the session's metric history and incident log as CSV
// into the reports directory.
func writeReports(ctx context.Context, dir, sessionID string, metrics reports.MetricSource, incidents reports.IncidentSource) {
	archive := blob.NewLocalBlobStore(dir)
	src := reports.Sources{Metrics: metrics, Incidents: incidents}
	for _, reportType := range []reports.ReportType{reports.ReportTypeMetrics, reports.ReportTypeIncidents} {
		gen, err := reports.NewReportGenerator(reportType, src)
		if err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_build_report","type":"%s","error":"%v"}`+"\n", reportType, err)
			continue
		}
		out, err := gen.Generate(ctx, sessionID)
		if err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_generate_report","type":"%s","error":"%v"}`+"\n", reportType, err)
			continue
		}
		key := fmt.Sprintf("%s/%s.csv", sessionID, reportType)
		if err := archive.Put(ctx, key, out); err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_write_report","key":"%s","error":"%v"}`+"\n", key, err)
			continue
		}
		fmt.Printf(`{"level":"info","msg":"report_written","key":"%s"}`+"\n", key)
	}
}

func logIncidents(incidents <-chan *incident.Incident) {
	for inc := range incidents {
		fmt.Printf(`{"level":"warn","msg":"incident","type":"%s","edge_id":"%s","severity":"%s","sim_time":%d}`+"\n",
			inc.Type, inc.EdgeID, inc.Severity, inc.SimTime)
	}
}

// watchStateChanges closes stopped the first time the session leaves the
// running state, letting main distinguish natural completion from a signal.
func watchStateChanges(changes <-chan engine.StateChange, stopped chan struct{}) {
	closed := false
	for ev := range changes {
		fmt.Printf(`{"level":"info","msg":"state_change","session_id":"%s","from":"%s","to":"%s"}`+"\n",
			ev.SessionID, ev.Previous, ev.New)
		if ev.New == engine.StateStopped && !closed {
			close(stopped)
			closed = true
		}
	}
}
