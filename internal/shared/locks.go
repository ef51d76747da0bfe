package shared

// Advisory lock keys serialising mutations per ledger. The storage substrate
// does not impose a global mutation order, so each ledger takes its own
// transaction-scoped Postgres advisory lock.
const (
	LockRoleRequests  int64 = 0x52455153 // "REQS"
	LockRegistrations int64 = 0x56454853 // "VEHS"
	LockRegistry      int64 = 0x524f4c45 // "ROLE"
)
