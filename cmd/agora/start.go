package main

import (
	"context"
	"fmt"
	"math/big"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/agoralabs/agora"
	"github.com/agoralabs/agora/api"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/fixed"
	"github.com/agoralabs/agora/repo"
)

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	params, err := buildParams(r.Config)
	if err != nil {
		return fmt.Errorf("governance config: %w", err)
	}
	registry, err := buildRegistry(r.Config)
	if err != nil {
		return fmt.Errorf("accounts config: %w", err)
	}

	var executor core.CallExecutor = &core.LoggingExecutor{Logger: logger}
	if r.Config.Chain.Enable {
		client, err := core.DialChain(ctx.Context, r.Config.Chain.DialUrl)
		if err != nil {
			return err
		}
		executor, err = core.NewChainExecutor(ctx.Context, client, r.Config.Chain.ExecutorKey,
			new(big.Int).SetUint64(r.Config.Chain.ChainID), logger)
		if err != nil {
			return err
		}
	}

	db, err := leveldb.New(filepath.Join(r.Config.RepoRoot, "leveldb"))
	if err != nil {
		return fmt.Errorf("open leveldb: %w", err)
	}

	engine, err := core.NewGovernance(params, registry, executor, core.SystemClock{}, db, logger)
	if err != nil {
		return fmt.Errorf("new governance engine: %w", err)
	}
	if err := seedConstitution(engine, r.Config.Governance.Constitution); err != nil {
		return fmt.Errorf("constitution config: %w", err)
	}

	var server *api.Server
	if r.Config.API.Enable {
		server = api.New(engine, logger, r.Config.API.Listen)
		go func() {
			if err := server.Start(); err != nil {
				logger.Errorf("api server stopped: %s", err)
			}
		}()
	}

	// keep the dequeue cadence alive even when no external calls arrive
	go func() {
		ticker := time.NewTicker(r.Config.Governance.DequeueFrequency)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Context.Done():
				return
			case <-ticker.C:
				engine.Tick()
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(server, &wg)

	fmt.Println("=============Agora is ready=============")

	wg.Wait()

	return nil
}

func buildParams(cfg *repo.Config) (core.Params, error) {
	gov := cfg.Governance

	minDeposit, ok := new(big.Int).SetString(gov.MinDeposit, 10)
	if !ok {
		return core.Params{}, errors.Errorf("malformed min_deposit %q", gov.MinDeposit)
	}
	approver, err := parseAddress(gov.Approver)
	if err != nil {
		return core.Params{}, errors.Wrap(err, "approver")
	}
	auditor, err := parseAddress(gov.Auditor)
	if err != nil {
		return core.Params{}, errors.Wrap(err, "auditor")
	}

	fractions := make([]fixed.Fraction, 4)
	for i, s := range []string{gov.ParticipationBaseline, gov.ParticipationFloor, gov.BaselineUpdateFactor, gov.BaselineQuorumFactor} {
		if fractions[i], err = fixed.FromString(s); err != nil {
			return core.Params{}, err
		}
	}

	return core.Params{
		MinDeposit:          minDeposit,
		ConcurrentProposals: gov.ConcurrentProposals,
		DequeueFrequency:    uint64(gov.DequeueFrequency.Seconds()),
		QueueExpiry:         uint64(gov.QueueExpiry.Seconds()),
		Durations: core.StageDurations{
			Approval:   uint64(gov.ApprovalDuration.Seconds()),
			Referendum: uint64(gov.ReferendumDuration.Seconds()),
			Execution:  uint64(gov.ExecutionDuration.Seconds()),
		},
		Approver: approver,
		Auditor:  auditor,
		Participation: core.ParticipationParameters{
			Baseline:     fractions[0],
			Floor:        fractions[1],
			UpdateFactor: fractions[2],
			QuorumFactor: fractions[3],
		},
	}, nil
}

func buildRegistry(cfg *repo.Config) (*core.StaticRegistry, error) {
	registry := core.NewStaticRegistry()
	for _, account := range cfg.Accounts {
		address, err := parseAddress(account.Address)
		if err != nil {
			return nil, err
		}
		weight, ok := new(big.Int).SetString(account.Weight, 10)
		if !ok || weight.Sign() < 0 {
			return nil, errors.Errorf("malformed weight %q for %s", account.Weight, account.Address)
		}
		registry.Weights[address] = weight
		if account.Frozen {
			registry.Frozen[address] = true
		}
	}
	return registry, nil
}

func seedConstitution(engine *core.Governance, rules []repo.ConstitutionRule) error {
	for _, rule := range rules {
		destination, err := parseAddress(rule.Destination)
		if err != nil {
			return err
		}
		var selector [4]byte
		if rule.Selector != "" {
			raw, err := hexutil.Decode(rule.Selector)
			if err != nil || len(raw) != 4 {
				return errors.Errorf("selector %q must be 4 hex bytes", rule.Selector)
			}
			copy(selector[:], raw)
		}
		threshold, err := fixed.FromString(rule.Threshold)
		if err != nil {
			return err
		}
		if err := engine.SetConstitution(destination, selector, threshold); err != nil {
			return errors.Wrapf(err, "constitution rule for %s", rule.Destination)
		}
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printVersion() {
	fmt.Printf("Agora version: %s-%s-%s\n", agora.CurrentVersion, agora.CurrentBranch, agora.CurrentCommit)
	fmt.Printf("App build date: %s\n", agora.BuildDate)
	fmt.Printf("System version: %s\n", agora.Platform)
	fmt.Printf("Golang version: %s\n", agora.GoVersion)
	fmt.Println()
}

func handleShutdown(server *api.Server, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				fmt.Println("api shutdown:", err)
			}
		}
		wg.Done()
		os.Exit(0)
	}()
}
