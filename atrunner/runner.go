// Package atrunner drives one block's worth of AT execution: it orders
// the deployed ATs, decides which of them run this block, wires the
// platform API to each one's machine state, and folds the resulting
// emissions and state changes back into the repository.
package atrunner

import (
	"sort"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/atapi"
	"qortal.dev/node/atvm"
	"qortal.dev/node/repository"
)

// Config holds the network-wide constants the runner needs but that are
// not themselves part of any one AT's state.
type Config struct {
	MaxStepsPerRound uint32
	MinutesPerBlock  uint32
}

// Result summarizes what happened to one AT during a block.
type Result struct {
	Address   string
	Ran       bool // false if the AT was skipped (stopped/finished/still sleeping)
	Faulted   bool // true on step overrun, illegal opcode, or fingerprint mismatch
	Err       error
	Emissions []repository.TransactionData
}

// RunBlock processes every deployed AT against the block at height, in
// canonical address-ascending order, and returns one Result per AT plus
// the full, block-wide, in-order list of emitted transactions ready for
// inclusion in the block.
func RunBlock(repo repository.Repository, height uint32, cfg Config) ([]Result, []repository.TransactionData, error) {
	addresses, err := repo.ATAddresses()
	if err != nil {
		return nil, nil, aterrors.Wrap(aterrors.KindRepositoryError, "listing AT addresses", err)
	}
	sort.Strings(addresses)

	var prevBlock repository.BlockSummary
	if height > 0 {
		prevBlock, err = repo.BlockByHeight(height - 1)
		if err != nil {
			return nil, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading previous block", err)
		}
	}
	currentBlock, err := repo.BlockByHeight(height)
	if err != nil {
		return nil, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading current block", err)
	}

	results := make([]Result, 0, len(addresses))
	var allEmissions []repository.TransactionData
	sequence := uint32(0)

	for _, address := range addresses {
		res, emissions, err := runOne(repo, address, height, prevBlock, currentBlock, cfg, sequence)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, res)
		if len(emissions) > 0 {
			allEmissions = append(allEmissions, emissions...)
			sequence += uint32(len(emissions))
		}
	}

	return results, allEmissions, nil
}

func runOne(
	repo repository.Repository,
	address string,
	height uint32,
	prevBlock, currentBlock repository.BlockSummary,
	cfg Config,
	sequence uint32,
) (Result, []repository.TransactionData, error) {
	res := Result{Address: address}

	blob, err := repo.ATBlob(address)
	if err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading AT blob", err)
	}
	m, err := atvm.Deserialize(blob)
	if err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "deserializing AT state", err)
	}

	if m.Sleeping {
		if height < m.SleepUntilHeight {
			return res, nil, nil // still asleep, skip entirely
		}
		m.Sleeping = false
	}
	if !m.CanRun() {
		return res, nil, nil // stopped/finished/frozen
	}

	account, err := repo.AccountByAddress(address)
	if err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading AT account", err)
	}
	creationHeight, err := repo.ATCreationHeight(address)
	if err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading AT creation height", err)
	}
	creatorPubKey, err := repo.ATCreatorPublicKey(address)
	if err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "loading AT creator", err)
	}

	resuming := m.PendingRandom
	m.BeginRound(!resuming)
	m.CurrentHeight = height

	ctx := &atapi.Context{
		Repo:                 repo,
		ATAddress:            address,
		ATCreatorPubKey:      creatorPubKey,
		ATCreationHeight:     creationHeight,
		CurrentHeight:        height,
		PreviousBlock:        prevBlock,
		LatestBlockSig:       currentBlock.Signature,
		CurrentBalance:       account.ConfirmedBalance,
		StartSequence:        sequence,
		AccountLastReference: account.LastReference,
		MinutesPerBlock:      cfg.MinutesPerBlock,
	}
	api := atapi.New(ctx)

	res.Ran = true
	runErr := m.Run(api, cfg.MaxStepsPerRound)
	if runErr != nil {
		res.Faulted = true
		res.Err = runErr
		// Fatal rounds discard emissions but still persist the machine's
		// state with its error flag set. CanRun does not consult that flag,
		// so the AT is scheduled again in later blocks.
		if putErr := repo.PutATBlob(address, m.Serialize()); putErr != nil {
			return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "persisting faulted AT state", putErr)
		}
		return res, nil, nil
	}

	if m.Stopped || m.Finished {
		api.OnFinished()
	}

	m.PreviousBalance = ctx.CurrentBalance
	if err := repo.PutATBlob(address, m.Serialize()); err != nil {
		return res, nil, aterrors.Wrap(aterrors.KindRepositoryError, "persisting AT state", err)
	}

	res.Emissions = api.Emissions()
	return res, res.Emissions, nil
}
