package sync

// OpType names the unit of work a log record is about.
type OpType string

const (
	OpList       OpType = "List"
	OpWriteLocal OpType = "WriteLocal"
	OpSkipped    OpType = "Skipped"
	OpMerge      OpType = "Merge"
	OpPurge      OpType = "Purge"
	OpUploadLog  OpType = "UploadLog"
)

// Phase is one step of a sync cycle, in execution order.
type Phase string

const (
	PhaseList      Phase = "LIST"
	PhaseReconcile Phase = "RECONCILE"
	PhaseMerge     Phase = "MERGE"
	PhasePurge     Phase = "PURGE"
	PhaseUploadLog Phase = "UPLOAD_LOG"
)
