package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jobshop-sim/jobshop-sim/sim"
	"github.com/jobshop-sim/jobshop-sim/sim/bus"
	"github.com/jobshop-sim/jobshop-sim/sim/cnp"
	"github.com/jobshop-sim/jobshop-sim/sim/qlearn"
	"github.com/jobshop-sim/jobshop-sim/sim/workload"
)

var (
	// shared flags
	configPath string // YAML config file; explicit flags override it
	seed       int64  // Master seed; subsystem streams are derived from it
	logLevel   string // Log verbosity level

	// shop layout
	numMachines  int // Number of machines in the shop
	machineTypes int // Distinct machine types; machines are spread round-robin

	// dispatch
	policyName string // spt, edd, lpt, qlearning, or cnp
	qtableDir  string // Badger directory for the persisted Q-table ("" = in-memory)

	// simulation horizon and workload
	horizon          float64
	arrivalRate      float64
	minOperations    int
	maxOperations    int
	minDuration      float64
	maxDuration      float64
	dueDateSlack     float64
	taillardFile     string // Taillard benchmark file; replaces the generator
	taillardInstance string

	// machine failures
	failuresEnabled   bool
	reliabilityPreset string  // high, medium, low
	mtbf              float64 // Overrides the preset when both mtbf and mttr are set
	mttr              float64

	// integration
	metricsPort        int    // Prometheus /metrics port (0 = disabled)
	busURL             string // NATS URL of a remote negotiation runtime ("" = in-process)
	busSubject         string
	negotiationTimeout time.Duration // per-round proposal collection bound
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "jobshop",
	Short: "Discrete-event job-shop scheduling simulator with negotiated dispatch",
}

// runCmd executes one simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the job-shop simulation",
	Run: func(cmd *cobra.Command, args []string) {
		applyConfigFile(cmd)
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		runSimulation()
	},
}

// serveCmd runs the negotiation runtime standalone, serving scheduler
// requests over NATS for an engine in another process.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the negotiation runtime over NATS",
	Run: func(cmd *cobra.Command, args []string) {
		applyConfigFile(cmd)
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		serveRuntime()
	},
}

func runSimulation() {
	machines := sim.NewMachines(numMachines, machineTypes)
	rng := sim.NewPartitionedRNG(seed)

	var collector *sim.Collector
	if metricsPort > 0 {
		collector = sim.NewCollector(nil)
		go func() {
			if err := sim.ServeMetrics(metricsPort); err != nil {
				logrus.Errorf("metrics server: %v", err)
			}
		}()
	}

	reliability := buildReliability()

	params := sim.Params{
		Horizon:     horizon,
		Machines:    machines,
		Reliability: reliability,
		RNG:         rng,
		Collector:   collector,
	}

	var (
		registry *cnp.Registry
		agent    *qlearn.Agent
		remote   *bus.RemoteCoordinator
	)
	switch policyName {
	case "cnp":
		if busURL != "" {
			req, err := bus.DialNATS(busURL, busSubject)
			if err != nil {
				logrus.Fatalf("connecting to negotiation runtime: %v", err)
			}
			remote = bus.NewRemoteCoordinator(req)
			params.Negotiator = remote
			params.Sink = remote
		} else {
			registry = cnp.NewRegistry(machines)
			params.Sink = registry
		}
	case "qlearning":
		agent = qlearn.NewAgent(openQTableStore(), rng.ForSubsystem(sim.SubsystemLearning))
		params.Policy = qlearn.NewLearnedPolicy(agent)
	default:
		p, err := sim.NewHeuristicPolicy(policyName)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		params.Policy = p
	}

	s := sim.NewSimulator(params)
	if registry != nil {
		in := cnp.NewInitiator(registry, s.Metrics, collector)
		in.SetTimeout(negotiationTimeout)
		s.Negotiator = in
	}

	jobs := loadJobs(rng)
	logrus.Infof("Starting simulation: %d machines (%d types), %d jobs, policy=%s, horizon=%.0f",
		numMachines, machineTypes, len(jobs), policyName, horizon)
	s.InjectJobs(jobs)
	s.Run()

	elapsed := s.Clock
	s.Metrics.Print(machines, elapsed)

	if registry != nil {
		registry.Close()
	}
	if remote != nil {
		remote.Close()
	}
	if agent != nil {
		if err := agent.Close(); err != nil {
			logrus.Warnf("closing Q-table store: %v", err)
		}
	}
	logrus.Info("Simulation complete.")
}

func serveRuntime() {
	machines := sim.NewMachines(numMachines, machineTypes)
	registry := cnp.NewRegistry(machines)
	defer registry.Close()

	agent := qlearn.NewAgent(openQTableStore(), sim.NewPartitionedRNG(seed).ForSubsystem(sim.SubsystemLearning))
	defer agent.Close()

	runtime := bus.NewRuntime(registry, cnp.NewInitiator(registry, nil, nil), agent)

	url := busURL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		logrus.Fatalf("connecting to NATS at %s: %v", url, err)
	}
	defer nc.Close()
	sub, err := bus.ServeNATS(nc, busSubject, runtime)
	if err != nil {
		logrus.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logrus.Info("Shutting down negotiation runtime.")
}

// openQTableStore opens the configured store, degrading to in-memory when
// the directory cannot be opened.
func openQTableStore() qlearn.Store {
	if qtableDir == "" {
		return qlearn.NewMemoryStore()
	}
	store, err := qlearn.OpenBadgerStore(qtableDir)
	if err != nil {
		logrus.Warnf("opening Q-table store at %s: %v; using in-memory table", qtableDir, err)
		return qlearn.NewMemoryStore()
	}
	return store
}

func buildReliability() *sim.Reliability {
	if !failuresEnabled {
		return nil
	}
	if mtbf > 0 && mttr > 0 {
		return &sim.Reliability{MTBF: mtbf, MTTR: mttr}
	}
	r, ok := sim.ReliabilityPreset(reliabilityPreset)
	if !ok {
		logrus.Fatalf("Unknown reliability preset %q (want high, medium, or low)", reliabilityPreset)
	}
	return &r
}

func loadJobs(rng *sim.PartitionedRNG) []*sim.Job {
	if taillardFile != "" {
		jobs, err := workload.LoadTaillard(taillardFile, taillardInstance, dueDateSlack)
		if err != nil {
			logrus.Fatalf("loading Taillard instance: %v", err)
		}
		return jobs
	}
	cfg := workload.Config{
		ArrivalRate:   arrivalRate,
		MachineTypes:  machineTypes,
		MinOperations: minOperations,
		MaxOperations: maxOperations,
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		DueDateSlack:  dueDateSlack,
	}
	return workload.Generate(cfg, horizon, rng.ForSubsystem(sim.SubsystemArrivals))
}

// applyConfigFile fills in values from the YAML config for every flag the
// user did not set explicitly.
func applyConfigFile(cmd *cobra.Command) {
	if configPath == "" {
		return
	}
	fc, err := LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("loading config %s: %v", configPath, err)
	}
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("seed") && fc.Seed != 0 {
		seed = fc.Seed
	}
	if !set("log") && fc.LogLevel != "" {
		logLevel = fc.LogLevel
	}
	if !set("horizon") && fc.Horizon != 0 {
		horizon = fc.Horizon
	}
	if !set("machines") && fc.Machines != 0 {
		numMachines = fc.Machines
	}
	if !set("machine-types") && fc.MachineTypes != 0 {
		machineTypes = fc.MachineTypes
	}
	if !set("policy") && fc.Policy != "" {
		policyName = fc.Policy
	}
	if !set("qtable") && fc.QTableDir != "" {
		qtableDir = fc.QTableDir
	}
	if !set("metrics-port") && fc.MetricsPort != 0 {
		metricsPort = fc.MetricsPort
	}
	if !set("bus-url") && fc.BusURL != "" {
		busURL = fc.BusURL
	}
	if !set("bus-subject") && fc.BusSubject != "" {
		busSubject = fc.BusSubject
	}
	if !set("failures") && fc.Failures.Enabled {
		failuresEnabled = true
	}
	if !set("reliability") && fc.Failures.Preset != "" {
		reliabilityPreset = fc.Failures.Preset
	}
	if !set("mtbf") && fc.Failures.MTBF != 0 {
		mtbf = fc.Failures.MTBF
	}
	if !set("mttr") && fc.Failures.MTTR != 0 {
		mttr = fc.Failures.MTTR
	}
	if !set("rate") && fc.Workload.ArrivalRate != 0 {
		arrivalRate = fc.Workload.ArrivalRate
	}
	if !set("min-operations") && fc.Workload.MinOperations != 0 {
		minOperations = fc.Workload.MinOperations
	}
	if !set("max-operations") && fc.Workload.MaxOperations != 0 {
		maxOperations = fc.Workload.MaxOperations
	}
	if !set("min-duration") && fc.Workload.MinDuration != 0 {
		minDuration = fc.Workload.MinDuration
	}
	if !set("max-duration") && fc.Workload.MaxDuration != 0 {
		maxDuration = fc.Workload.MaxDuration
	}
	if !set("due-date-slack") && fc.Workload.DueDateSlack != 0 {
		dueDateSlack = fc.Workload.DueDateSlack
	}
	if !set("taillard") && fc.Taillard.File != "" {
		taillardFile = fc.Taillard.File
	}
	if !set("taillard-instance") && fc.Taillard.Instance != "" {
		taillardInstance = fc.Taillard.Instance
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, serveCmd} {
		c.Flags().StringVar(&configPath, "config", "", "YAML config file (explicit flags take precedence)")
		c.Flags().Int64Var(&seed, "seed", 42, "Master seed for all random streams")
		c.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().IntVar(&numMachines, "machines", 6, "Number of machines in the shop")
		c.Flags().IntVar(&machineTypes, "machine-types", 3, "Number of distinct machine types")
		c.Flags().StringVar(&qtableDir, "qtable", "", "Directory for the persisted Q-table (empty = in-memory)")
	}

	// dispatch and horizon
	runCmd.Flags().StringVar(&policyName, "policy", "spt", "Dispatch policy: spt, edd, lpt, qlearning, or cnp")
	runCmd.Flags().Float64Var(&horizon, "horizon", 1000, "Simulation horizon in time units")

	// workload generation
	runCmd.Flags().Float64Var(&arrivalRate, "rate", 0.1, "Job arrivals per time unit")
	runCmd.Flags().IntVar(&minOperations, "min-operations", 1, "Minimum operations per job")
	runCmd.Flags().IntVar(&maxOperations, "max-operations", 3, "Maximum operations per job")
	runCmd.Flags().Float64Var(&minDuration, "min-duration", 1, "Minimum operation duration")
	runCmd.Flags().Float64Var(&maxDuration, "max-duration", 10, "Maximum operation duration")
	runCmd.Flags().Float64Var(&dueDateSlack, "due-date-slack", workload.DefaultDueDateSlack, "Due date = arrival + slack * total processing time")
	runCmd.Flags().StringVar(&taillardFile, "taillard", "", "Taillard benchmark file (replaces the generator)")
	runCmd.Flags().StringVar(&taillardInstance, "taillard-instance", "", "Instance name within the Taillard file")

	// machine failures
	runCmd.Flags().BoolVar(&failuresEnabled, "failures", false, "Enable stochastic machine failures")
	runCmd.Flags().StringVar(&reliabilityPreset, "reliability", "medium", "Reliability preset: high, medium, low")
	runCmd.Flags().Float64Var(&mtbf, "mtbf", 0, "Mean time between failures (overrides preset with --mttr)")
	runCmd.Flags().Float64Var(&mttr, "mttr", 0, "Mean time to repair (overrides preset with --mtbf)")

	// integration
	runCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Prometheus metrics port (0 = disabled)")
	runCmd.Flags().StringVar(&busURL, "bus-url", "", "NATS URL of a remote negotiation runtime (empty = in-process)")
	runCmd.Flags().StringVar(&busSubject, "bus-subject", bus.DefaultSubject, "Bus subject for scheduler requests")
	runCmd.Flags().DurationVar(&negotiationTimeout, "negotiation-timeout", cnp.DefaultProposalTimeout, "Wall-clock bound on one round's proposal collection")

	serveCmd.Flags().StringVar(&busURL, "bus-url", "", "NATS URL to serve on (default: the local server)")
	serveCmd.Flags().StringVar(&busSubject, "bus-subject", bus.DefaultSubject, "Bus subject for scheduler requests")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}
