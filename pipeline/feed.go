package pipeline

import "github.com/openfluke/pipeflow/streamorder"

// CopyMode selects how SetDataSource/FeedInput resolves the share-vs-copy
// decision for one feed, overriding the operator's default no_copy setting.
type CopyMode int

const (
	// CopyDefault defers to the operator's own no_copy flag.
	CopyDefault CopyMode = iota
	// CopyForce always allocates a destination buffer and copies into it.
	CopyForce
	// CopyForceNone always attempts a zero-copy share; it is an error to
	// request this when source and destination backends cannot share.
	CopyForceNone
)

// FeedSettings bundles the per-feed options SetDataSource accepts.
type FeedSettings struct {
	Mode          CopyMode
	Sync          bool // host-block until the copy's completion event fires
	UseCopyKernel bool // accepted but not read: the input operator's copy path is a host-side Clone either way
	DataID        string
	Order         streamorder.Order
}

// FeedOption configures a FeedSettings value.
type FeedOption func(*FeedSettings)

func WithCopyMode(m CopyMode) FeedOption   { return func(s *FeedSettings) { s.Mode = m } }
func WithSync(sync bool) FeedOption        { return func(s *FeedSettings) { s.Sync = sync } }
func WithUseCopyKernel(b bool) FeedOption  { return func(s *FeedSettings) { s.UseCopyKernel = b } }
func WithDataID(id string) FeedOption      { return func(s *FeedSettings) { s.DataID = id } }
func WithOrder(o streamorder.Order) FeedOption { return func(s *FeedSettings) { s.Order = o } }

func resolveFeedSettings(opts []FeedOption) FeedSettings {
	var s FeedSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
