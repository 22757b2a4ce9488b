package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/rln-sandbox/cache"
	"github.com/vocdoni/rln-sandbox/circuits"
	"github.com/vocdoni/rln-sandbox/crypto/field"
	"github.com/vocdoni/rln-sandbox/identity"
	"github.com/vocdoni/rln-sandbox/log"
	"github.com/vocdoni/rln-sandbox/registry"
	"github.com/vocdoni/rln-sandbox/rln"
	"github.com/vocdoni/rln-sandbox/service"
	"github.com/vocdoni/rln-sandbox/storage"
	"github.com/vocdoni/rln-sandbox/types"
	"github.com/vocdoni/rln-sandbox/web3"
)

func main() {
	privKey := flag.String("privkey", "", "private key of the Ethereum account that signs the contract transactions")
	w3rpcs := flag.StringSlice("w3rpc", []string{"http://localhost:8545"}, "web3 rpc endpoints")
	contract := flag.String("contract", "", "address of the RLN contract")
	startBlock := flag.Uint64("startBlock", 0, "first block to index, usually the contract deployment block")
	dataDir := flag.String("dataDir", filepath.Join(os.TempDir(), "rln-node"), "directory of the node database")
	depth := flag.Int("depth", types.DefaultTreeDepth, "depth of the membership tree")
	rlnID := flag.String("rlnIdentifier", "", "identifier of the application, as a decimal or 0x prefixed number (required)")
	idStr := flag.String("identity", "", "serialized identity [trapdoor, nullifier], a new one is created if empty")
	limit := flag.Uint64("limit", 0, "register the identity with this message limit if it is not a member yet")
	host := flag.String("host", "0.0.0.0", "host of the peer API")
	port := flag.Int("port", 9090, "port of the peer API")
	syncInterval := flag.Duration("syncInterval", 10*time.Second, "interval between registry synchronizations")
	artifactsTimeout := flag.Duration("artifactsTimeout", time.Minute, "timeout to load the circuit artifacts")
	logLevel := flag.String("logLevel", log.LogLevelInfo, "log level (debug, info, warn, error)")
	// remote artifacts, only downloaded when not found in the artifacts dir
	rlnWasmURL := flag.String("rlnWasmURL", "", "url of the rln witness calculator")
	rlnWasmHash := flag.String("rlnWasmHash", "", "sha256 of the rln witness calculator")
	rlnZkeyURL := flag.String("rlnZkeyURL", "", "url of the rln proving key")
	rlnZkeyHash := flag.String("rlnZkeyHash", "", "sha256 of the rln proving key")
	rlnVkeyURL := flag.String("rlnVkeyURL", "", "url of the rln verification key")
	rlnVkeyHash := flag.String("rlnVkeyHash", "", "sha256 of the rln verification key")
	withdrawWasmURL := flag.String("withdrawWasmURL", "", "url of the withdraw witness calculator")
	withdrawWasmHash := flag.String("withdrawWasmHash", "", "sha256 of the withdraw witness calculator")
	withdrawZkeyURL := flag.String("withdrawZkeyURL", "", "url of the withdraw proving key")
	withdrawZkeyHash := flag.String("withdrawZkeyHash", "", "sha256 of the withdraw proving key")
	flag.Parse()

	if err := log.Init(*logLevel, "stdout", nil); err != nil {
		panic(err)
	}
	if !common.IsHexAddress(*contract) {
		log.Fatalf("invalid contract address %q", *contract)
	}
	rlnIdentifier, err := parseRLNIdentifier(*rlnID)
	if err != nil {
		log.Fatal(err)
	}

	id, err := loadIdentity(*idStr)
	if err != nil {
		log.Fatal(err)
	}

	// web3 contracts
	contracts, err := web3.NewContracts(common.HexToAddress(*contract), (*w3rpcs)[0])
	if err != nil {
		log.Fatal(err)
	}
	for _, rpc := range (*w3rpcs)[1:] {
		if err := contracts.AddWeb3Endpoint(rpc); err != nil {
			log.Warnw("failed to add endpoint", "rpc", rpc, "err", err)
		}
	}
	if *privKey != "" {
		if err := contracts.SetAccountPrivateKey(*privKey); err != nil {
			log.Fatal(err)
		}
	}
	log.Infow("contracts initialized", "chainId", contracts.ChainID, "account", contracts.AccountAddress().Hex())

	// circuit artifacts from the default directories or downloaded
	rlnConf := &circuits.ArtifactsConfig{
		WitnessCalculatorRemote: remoteArtifact(*rlnWasmURL, *rlnWasmHash),
		ProvingKeyRemote:        remoteArtifact(*rlnZkeyURL, *rlnZkeyHash),
		VerificationKeyRemote:   remoteArtifact(*rlnVkeyURL, *rlnVkeyHash),
	}
	withdrawConf := &circuits.ArtifactsConfig{
		WitnessCalculatorRemote: remoteArtifact(*withdrawWasmURL, *withdrawWasmHash),
		ProvingKeyRemote:        remoteArtifact(*withdrawZkeyURL, *withdrawZkeyHash),
	}
	rlnArtifacts, withdrawArtifacts, err := service.ResolveArtifacts(*artifactsTimeout, rlnConf, withdrawConf, *depth)
	if err != nil {
		log.Fatal(err)
	}
	backend := circuits.NewRapidsnarkBackend()
	var withdrawProver *circuits.WithdrawProver
	if withdrawArtifacts.CanProve() {
		if withdrawProver, err = circuits.NewWithdrawProver(backend, withdrawArtifacts); err != nil {
			log.Fatal(err)
		}
	}

	// persistent storage for the membership index and the proof cache
	database, err := metadb.New(db.TypePebble, *dataDir)
	if err != nil {
		log.Fatal(err)
	}
	stg := storage.New(database)
	defer stg.Close()

	ledger, err := registry.NewLedgerRegistry(&registry.LedgerConfig{
		Contracts:       contracts,
		Storage:         stg,
		ContractAddress: common.HexToAddress(*contract),
		StartBlock:      *startBlock,
		Depth:           *depth,
		WithdrawProver:  withdrawProver,
	})
	if err != nil {
		log.Fatal(err)
	}
	proofCache, err := cache.New(stg, types.DefaultCacheSize)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	node, err := rln.New(ctx, &rln.Config{
		Identity:      id,
		RLNIdentifier: rlnIdentifier,
		TreeDepth:     *depth,
		Registry:      ledger,
		Cache:         proofCache,
		Backend:       backend,
		Artifacts:     rlnArtifacts,
	})
	if err != nil {
		log.Fatal(err)
	}

	// keep the membership index up to date
	monitor := service.NewRegistryMonitor(ledger, *syncInterval)
	if err := monitor.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer monitor.Stop()

	if err := node.Sync(ctx); err != nil {
		log.Fatal(err)
	}
	if node.State() == rln.StateUnregistered && *limit > 0 {
		if err := node.Register(ctx, *limit, nil); err != nil {
			log.Fatal(err)
		}
		log.Infow("identity registered", "commitment", id.Commitment.String(), "limit", *limit)
	}
	log.Infow("rln node ready", "state", node.State().String(), "commitment", id.Commitment.String())

	// start API service
	api := service.NewAPI(node, *host, *port)
	if err := api.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer api.Stop()

	<-ctx.Done()
	log.Info("shutting down")
}

// parseRLNIdentifier parses the application identifier, which must be set
// and be a field element.
func parseRLNIdentifier(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("--rlnIdentifier is required")
	}
	id, ok := new(big.Int).SetString(s, 0)
	if !ok || !field.IsInField(id) {
		return nil, fmt.Errorf("invalid rln identifier %q", s)
	}
	return id, nil
}

func remoteArtifact(url, hash string) circuits.RemoteArtifact {
	return circuits.RemoteArtifact{URL: url, Hash: types.HexStringToHexBytes(hash)}
}

func loadIdentity(s string) (*identity.Identity, error) {
	if s != "" {
		return identity.FromString(s)
	}
	id, err := identity.New()
	if err != nil {
		return nil, err
	}
	log.Warnw("new identity created, keep it to restart the node", "identity", id.String())
	return id, nil
}
