// Command node starts a tolbook sequencer node.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/tolelom/tolbook/config"
	"github.com/tolelom/tolbook/consensus"
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/indexer"
	"github.com/tolelom/tolbook/internal/logging"
	"github.com/tolelom/tolbook/rpc"
	"github.com/tolelom/tolbook/storage"
	"github.com/tolelom/tolbook/vm"
	"github.com/tolelom/tolbook/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolbook/vm/modules/asset"
	_ "github.com/tolelom/tolbook/vm/modules/books"
	_ "github.com/tolelom/tolbook/vm/modules/economy"
)

var opts struct {
	Config    string `long:"config" env:"TOLBOOK_CONFIG" description:"path to YAML or JSON config file" default:"config.yaml"`
	Key       string `long:"key" env:"TOLBOOK_KEY" description:"path to the sequencer keystore" default:"sequencer.key"`
	GenKey    bool   `long:"genkey" description:"generate a new sequencer key and exit"`
	Password  string `long:"password" env:"TOLBOOK_PASSWORD" description:"keystore password; prefer the environment variable"`
	DataDir   string `long:"data-dir" env:"TOLBOOK_DATA_DIR" description:"overrides data_dir from the config"`
	RPCPort   int    `long:"rpc-port" env:"TOLBOOK_RPC_PORT" description:"overrides rpc.port from the config"`
	LogPreset string `long:"log-preset" env:"TOLBOOK_LOG_PRESET" description:"development or production"`
	LogLevel  string `long:"log-level" env:"TOLBOOK_LOG_LEVEL" description:"debug, info, warn or error"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.RPCPort != 0 {
		cfg.RPC.Port = opts.RPCPort
	}
	if opts.LogPreset != "" {
		cfg.Log.Preset = opts.LogPreset
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, err := logging.New(cfg.Log.Preset, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if opts.Password == "" {
		logger.Fatal("TOLBOOK_PASSWORD is not set")
	}

	// ---- generate key mode ----
	if opts.GenKey {
		w, err := wallet.Generate()
		if err != nil {
			logger.Fatal("generate key", zap.Error(err))
		}
		if err := wallet.SaveKey(opts.Key, opts.Password, w.PrivKey()); err != nil {
			logger.Fatal("save key", zap.Error(err))
		}
		logger.Info("generated sequencer key", zap.String("pubkey", w.PubKey()), zap.String("path", opts.Key))
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("node stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// ---- load sequencer key ----
	privKey, created, err := wallet.LoadOrCreate(opts.Key, opts.Password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	if created {
		logger.Info("created sequencer key", zap.String("path", opts.Key), zap.String("pubkey", privKey.Public().Hex()))
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State and blocks share the DB under different key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- events and indexer ----
	emitter := events.NewEmitter()
	emitter.SetLogger(logger)
	idx := indexer.New(db, emitter, logger.Named("indexer"))

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		logger.Info("genesis block committed", zap.String("hash", genesis.Hash), zap.String("chain_id", cfg.Genesis.ChainID))
	}

	mempool := core.NewMempool()

	exec := vm.NewExecutor(state, emitter)
	exec.SetChainID(cfg.Genesis.ChainID)
	exec.SetLogger(logger.Named("vm"))

	seq := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, logger)
	if tip := bc.Tip(); tip != nil && tip.Header.Height > 0 {
		if err := seq.VerifyBlock(tip); err != nil {
			return fmt.Errorf("stored tip: %w", err)
		}
	}
	if !seq.IsSequencer() {
		return consensus.ErrNotSequencer
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPC.Port)
	handler := rpc.NewHandler(bc, mempool, state.Committed(), idx, cfg.Genesis.ChainID)
	server := rpc.NewServer(rpcAddr, handler, rpc.Options{
		AuthToken:     cfg.RPC.AuthToken,
		RatePerSecond: cfg.RPC.RatePerSecond,
		Burst:         cfg.RPC.Burst,
		Logger:        logger,
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			logger.Warn("rpc stop", zap.Error(err))
		}
	}()

	// ---- block production ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(cfg.BlockInterval, done)
	}()
	logger.Info("sequencer running",
		zap.String("pubkey", privKey.Public().Hex()),
		zap.Duration("interval", cfg.BlockInterval),
		zap.Bool("rpc_auth", cfg.RPC.AuthToken != ""))

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	// Stop block production first so no block is half written; deferred
	// calls then stop RPC and close the DB.
	close(done)
	wg.Wait()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config file not found at %s, using defaults\n", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
