package eventbus

const (
	ContentRegistered = "content.registered"
	ContentDeleted    = "content.deleted"
	ContentRenamed    = "content.renamed"
	ContestStarted    = "contest.started"
	ContestWinner     = "contest.winner"
	ContestFinished   = "contest.finished"
	DispatchFinished  = "dispatch.finished"
)

type ContentEvent struct {
	Code    string
	OldCode string
	ActorID int64
}

type ContestEvent struct {
	Cycle   int
	Winner  int64
	Place   int
	Winners []int64
}

type DispatchEvent struct {
	JobID     string
	Name      string
	Total     int
	Succeeded int
	Failed    int
	Canceled  bool
}
