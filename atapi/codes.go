// Package atapi is the platform API: the concrete atvm.Functions
// implementation the VM dispatches EXT_FUN* opcodes to. It
// bridges bytecode to the ledger — reading transactions addressed by A,
// writing recipient data into B, paying out balance, and emitting AT
// transactions — while enforcing the invariants that make AT execution
// deterministic and consensus-safe.
package atapi

// Function codes. These are the 16-bit immediates EXT_FUN* opcodes carry;
// once an AT is deployed its bytecode is immutable, so these values are as
// consensus-critical as the opcodes themselves and must never be
// renumbered.
const (
	FnCurrentBlockHeight                uint16 = 1
	FnATCreationBlockHeight             uint16 = 2
	FnPutPreviousBlockHashIntoA         uint16 = 3
	FnPutTransactionAfterTimestampIntoA uint16 = 4
	FnGetTypeFromTransactionInA         uint16 = 5
	FnGetAmountFromTransactionInA       uint16 = 6
	FnGetTimestampFromTransactionInA    uint16 = 7
	FnPutAddressFromTransactionInAIntoB uint16 = 8 // transaction-in-A's creator
	FnPutMessageFromTransactionInAIntoB uint16 = 9
	FnPutCreatorAddressIntoB            uint16 = 10 // the AT's own deployer
	FnGenerateRandomUsingTransactionInA uint16 = 11
	FnCurrentBalance                    uint16 = 12
	FnPayAmountToB                      uint16 = 13
	FnMessageAToB                       uint16 = 14
	FnAddMinutesToTimestamp             uint16 = 15
)

// sentinelAllOnes is returned by getTypeFromTransactionInA when no
// transaction is addressed, or when its kind is not one this API
// distinguishes.
const sentinelAllOnes uint64 = ^uint64(0)
