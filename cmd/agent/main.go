// Command agent is the process entrypoint: it wires the Chain Adapter per
// configured chain, the two durable stores, the action registry, and runs
// the Stats loop and the Action loop as two independent periodic tickers
// alongside the read-only HTTP surface, per §2/§5/§6.
//
// Load config, build the chain clients, launch the loops: the same shape
// as a single-chain agent's entrypoint, generalized from one hardcoded
// chain/strategy to a configured set of chains and two independently
// ticking loops instead of one.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"crossliquid/internal/actions"
	"crossliquid/internal/allocation"
	"crossliquid/internal/chainadapter"
	"crossliquid/internal/config"
	"crossliquid/internal/httpapi"
	"crossliquid/internal/metrics"
	"crossliquid/internal/runner"
	"crossliquid/internal/stats"
	"crossliquid/internal/taskstore"
	"crossliquid/internal/timeseries"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("agent: fatal")
	}
}

func run() error {
	deploymentsPath := flag.String("deployments", "deployments.yaml", "path to the chain deployments YAML file")
	dataDir := flag.String("data-dir", "data", "directory for the task/time-series sqlite files")
	httpAddr := flag.String("http-addr", ":8080", "address the read-only HTTP surface listens on")
	flag.Parse()

	deployments, err := config.LoadDeployments(*deploymentsPath)
	if err != nil {
		return fmt.Errorf("load deployments: %w", err)
	}

	chainIDs := make([]int64, 0, len(deployments))
	for id := range deployments {
		chainIDs = append(chainIDs, id)
	}
	sort.Slice(chainIDs, func(i, j int) bool { return chainIDs[i] < chainIDs[j] })
	if len(chainIDs) == 0 {
		return fmt.Errorf("no chains configured in %s", *deploymentsPath)
	}

	env, err := config.LoadEnv(chainIDs)
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	strategy := config.DefaultStrategyConfig()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	taskStore, err := taskstore.NewSQLiteStore(filepath.Join(*dataDir, "tasks.db"))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer taskStore.Close()

	tsStore, err := timeseries.NewSQLiteStore(filepath.Join(*dataDir, "timeseries.db"))
	if err != nil {
		return fmt.Errorf("open timeseries store: %w", err)
	}
	defer tsStore.Close()

	chains := make(map[int64]*wiredChain, len(chainIDs))
	for _, id := range chainIDs {
		wired, err := wireChain(deployments[id], env)
		if err != nil {
			return fmt.Errorf("wire chain %d: %w", id, err)
		}
		chains[id] = wired
	}

	definitions := buildDefinitions(chainIDs, chains, strategy)

	metricsEngine := metrics.NewEngine(tsStore)
	allocationCache := &allocation.Cache{
		Metrics:   metricsEngine,
		GasScores: config.GasScores,
		Excluded:  config.ExcludedChains,
		Sources:   allocationSources(chainIDs, chains),
	}
	for _, def := range definitions {
		if cct, ok := def.(*actions.CrossChainTransfer); ok {
			cct.Allocations = allocationCache
		}
	}

	actionRunner := &runner.Runner{Store: taskStore, Definitions: definitions, TickDeadline: strategy.TickDeadline}
	statsCollector := &stats.Collector{Store: tsStore, Sources: statsSources(chainIDs, chains)}

	status := &httpapi.Status{}
	server := &httpapi.Server{
		TimeSeries: tsStore,
		Metrics:    metricsEngine,
		Allocation: allocationCache,
		ChainIDs:   chainIDs,
		Status:     status,
	}
	httpErrCh := server.Start(*httpAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statsInterval := env.StatsInterval
	if statsInterval <= 0 {
		statsInterval = 30 * time.Second
	}
	go runStatsLoop(ctx, statsCollector, statsInterval, status)
	go runActionLoop(ctx, actionRunner, allocationCache, strategy.ActionLoopInterval, status)

	select {
	case <-ctx.Done():
		log.Info().Msg("agent: shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("agent: http shutdown")
	}
	return nil
}

// runStatsLoop drives the Stats loop on its own ticker. The Collector
// itself enforces the single-shot no-overlap guard (§5); this loop just
// supplies the cadence.
func runStatsLoop(ctx context.Context, collector *stats.Collector, interval time.Duration, status *httpapi.Status) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.Tick(ctx)
			status.RecordStats(nil)
		}
	}
}

// runActionLoop drives the Action loop on its own ticker, guarded against
// overlapping ticks per §5 ("if a previous tick is still running when the
// next timer fires, the new tick is skipped with a warning"). The
// allocation cache refreshes once per tick, before Tick's start phase
// reads it through CrossChainTransfer's gate.
func runActionLoop(ctx context.Context, r *runner.Runner, allocationCache *allocation.Cache, interval time.Duration, status *httpapi.Status) {
	var inFlight atomic.Bool
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inFlight.CompareAndSwap(false, true) {
				log.Warn().Msg("action loop: previous tick still running, skipping")
				continue
			}
			go func() {
				defer inFlight.Store(false)
				allocationCache.Refresh(ctx, time.Now().UTC())
				err := r.Tick(ctx)
				status.RecordAction(err)
				if err != nil {
					log.Warn().Err(err).Msg("action loop: tick error")
				}
			}()
		}
	}
}

// wiredChain holds everything one chain's action definitions need: the
// adapter, the default pool, and the manager address balances are read
// against.
type wiredChain struct {
	Adapter        chainadapter.Adapter
	PoolKey        chainadapter.PoolKey
	QueryPoolKey   *chainadapter.PoolKey
	ManagerAddress common.Address
	Decimals1      int
	HasVault       bool
}

func wireChain(dep config.ChainDeployment, env *config.EnvConfig) (*wiredChain, error) {
	rpc, ok := env.RPCEndpoints[dep.ChainID]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint configured")
	}
	client, err := ethclient.Dial(rpc)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainIDBig := big.NewInt(dep.ChainID)

	managerABI, err := chainadapter.LoadABI(dep.ABIPaths["poolManager"])
	if err != nil {
		return nil, err
	}
	stateViewABI, err := chainadapter.LoadABI(dep.ABIPaths["stateView"])
	if err != nil {
		return nil, err
	}
	quoterABI, err := chainadapter.LoadABI(dep.ABIPaths["quoter"])
	if err != nil {
		return nil, err
	}
	erc20ABI, err := chainadapter.LoadABI(dep.ABIPaths["erc20"])
	if err != nil {
		return nil, err
	}

	manager := chainadapter.NewContractClient(client, chainIDBig, common.HexToAddress(dep.Contracts.PoolManager), managerABI)
	stateView := chainadapter.NewContractClient(client, chainIDBig, common.HexToAddress(dep.Contracts.StateView), stateViewABI)
	quoter := chainadapter.NewContractClient(client, chainIDBig, common.HexToAddress(dep.Contracts.Quoter), quoterABI)

	var vault *chainadapter.ContractClient
	hasVault := dep.Contracts.Vault != ""
	if hasVault {
		vaultABI, err := chainadapter.LoadABI(dep.ABIPaths["vault"])
		if err != nil {
			return nil, err
		}
		vault = chainadapter.NewContractClient(client, chainIDBig, common.HexToAddress(dep.Contracts.Vault), vaultABI)
	}

	token0 := common.HexToAddress(dep.Pool.Token0)
	token1 := common.HexToAddress(dep.Pool.Token1)
	tokens := map[common.Address]*chainadapter.ContractClient{
		token0: chainadapter.NewContractClient(client, chainIDBig, token0, erc20ABI),
		token1: chainadapter.NewContractClient(client, chainIDBig, token1, erc20ABI),
	}

	adapter := chainadapter.NewEthAdapter(dep.ChainID, client, env.VaultPrivateKey, manager, stateView, quoter, vault, tokens)
	if dep.Contracts.UniversalRouter != "" {
		routerABI, err := chainadapter.LoadABI(dep.ABIPaths["universalRouter"])
		if err != nil {
			return nil, err
		}
		router := chainadapter.NewContractClient(client, chainIDBig, common.HexToAddress(dep.Contracts.UniversalRouter), routerABI)
		adapter.SetRouter(router)
	}

	poolKey := chainadapter.PoolKey{
		ChainID:     dep.ChainID,
		Address:     common.HexToAddress(dep.Pool.Address),
		Token0:      token0,
		Token1:      token1,
		TickSpacing: dep.Pool.TickSpacing,
	}

	var queryPoolKey *chainadapter.PoolKey
	if dep.Pool.QueryPool != "" {
		queryPoolKey = &chainadapter.PoolKey{ChainID: dep.ChainID, Address: common.HexToAddress(dep.Pool.QueryPool)}
	}

	managerAddr := chainadapter.SenderAddress(env.VaultPrivateKey)

	return &wiredChain{
		Adapter:        adapter,
		PoolKey:        poolKey,
		QueryPoolKey:   queryPoolKey,
		ManagerAddress: managerAddr,
		Decimals1:      6, // the stable leg of every configured pool is a 6-decimal USD stablecoin
		HasVault:       hasVault,
	}, nil
}

// buildDefinitions assembles the action registry in registration order:
// per chain (ascending id) VaultSync, AddLiquidity, RemoveLiquidity,
// SwapForBalance, followed by a CrossChainTransfer for every ordered pair
// of distinct chains. Registration order is what makes the Action
// Runner's sequential start phase deterministic (§9).
func buildDefinitions(chainIDs []int64, chains map[int64]*wiredChain, strategy config.StrategyConfig) []actions.Definition {
	var defs []actions.Definition

	intendedReserve, _ := new(big.Int).SetString(strategy.IntendedVaultReserve, 10)
	if intendedReserve == nil {
		intendedReserve = big.NewInt(0)
	}

	for _, id := range chainIDs {
		c := chains[id]
		if c.HasVault {
			defs = append(defs, &actions.VaultSync{
				ChainID:         id,
				Adapter:         c.Adapter,
				IntendedReserve: intendedReserve,
			})
		}
		defs = append(defs, &actions.AddLiquidity{
			ChainID:           id,
			Adapter:           c.Adapter,
			PoolKey:           c.PoolKey,
			QueryPoolKey:      c.QueryPoolKey,
			ManagerAddress:    c.ManagerAddress,
			RangeWidth:        strategy.RangeWidth,
			SlippagePct:       strategy.SlippagePct,
			MinBothSideUsd:    strategy.MinBothSideValueUsd,
			MaxImbalanceRatio: strategy.MaxSideImbalanceRatio,
			MaxTickDivergence: strategy.MaxTickDivergence,
			Decimals1:         c.Decimals1,
		})
		defs = append(defs, &actions.RemoveLiquidity{
			ChainID:   id,
			Adapter:   c.Adapter,
			LowerFrac: strategy.RemoveLiquidityLowerFrac,
			UpperFrac: strategy.RemoveLiquidityUpperFrac,
		})
		defs = append(defs, &actions.SwapForBalance{
			ChainID:           id,
			Adapter:           c.Adapter,
			PoolKey:           c.PoolKey,
			ManagerAddress:    c.ManagerAddress,
			SlippagePct:       strategy.SlippagePct,
			MinTotalUsd:       strategy.MinSwapTotalValueUsd,
			MaxImbalanceRatio: strategy.MaxSideImbalanceRatio,
			Decimals1:         c.Decimals1,
		})
	}

	for _, from := range chainIDs {
		for _, to := range chainIDs {
			if from == to {
				continue
			}
			defs = append(defs, &actions.CrossChainTransfer{
				FromChainID:        from,
				ToChainID:          to,
				FromAdapter:        chains[from].Adapter,
				ManagerAddress:     chains[from].ManagerAddress,
				Token:              chains[from].PoolKey.Token1,
				RebalanceThreshold: strategy.RebalanceThresholdPct,
				TransferFraction:   0.25,
			})
		}
	}

	return defs
}

func allocationSources(chainIDs []int64, chains map[int64]*wiredChain) []allocation.ChainSource {
	out := make([]allocation.ChainSource, 0, len(chainIDs))
	for _, id := range chainIDs {
		c := chains[id]
		out = append(out, allocation.ChainSource{
			ChainID:        id,
			Adapter:        c.Adapter,
			PoolKey:        c.PoolKey,
			ManagerAddress: c.ManagerAddress,
			Decimals1:      c.Decimals1,
			HasVault:       c.HasVault,
		})
	}
	return out
}

func statsSources(chainIDs []int64, chains map[int64]*wiredChain) []stats.ChainSource {
	out := make([]stats.ChainSource, 0, len(chainIDs))
	for _, id := range chainIDs {
		c := chains[id]
		out = append(out, stats.ChainSource{Adapter: c.Adapter, PoolKey: c.PoolKey})
	}
	return out
}
