package ota

import (
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/Masterminds/semver"
	"github.com/go-chi/render"
	"github.com/pkg/errors"

	deverrors "github.com/CodedInternet/rcdrive/onboard/errors"
	"github.com/CodedInternet/rcdrive/onboard/partition"
)

const (
	VERSION_HEADER = "X-Firmware-Version"
	MAX_IMAGE_SIZE = 16 << 20
)

type Kind string

const (
	KindFirmware   Kind = "firmware"
	KindFilesystem Kind = "filesystem"
)

type ErrorCode int

const (
	ErrAuth ErrorCode = iota
	ErrBegin
	ErrConnect
	ErrReceive
	ErrEnd
)

func (c ErrorCode) String() string {
	switch c {
	case ErrAuth:
		return "Auth Failed"
	case ErrBegin:
		return "Begin Failed"
	case ErrConnect:
		return "Connect Failed"
	case ErrReceive:
		return "Receive Failed"
	case ErrEnd:
		return "End Failed"
	}
	return "Unknown Error " + strconv.Itoa(int(c))
}

// Hooks report update progress. Any of them may be nil.
type Hooks struct {
	OnStart    func(kind Kind)
	OnComplete func()
	OnError    func(code ErrorCode, err error)
}

type PartitionStore interface {
	FindFirst(subType string) (partition.Partition, error)
	NextUpdatePartition() (partition.Partition, error)
	SetBootPartition(p partition.Partition) error
	WriteImage(p partition.Partition, version string, r io.Reader) (int64, error)
}

type Result struct {
	Target    Kind   `json:"target,omitempty"`
	Partition string `json:"partition,omitempty"`
	Version   string `json:"version,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Listener accepts image uploads over HTTP. One upload runs at a time;
// once an upload completes Handle reports that the device should restart.
type Listener struct {
	store      PartitionStore
	hooks      Hooks
	running    *semver.Version
	constraint *semver.Constraints

	// Authorize is checked before anything is written. Nil allows all.
	Authorize func(r *http.Request) error
	MaxSize   int64

	busy    int32
	pending int32
}

func NewListener(store PartitionStore, running *semver.Version, hooks Hooks) *Listener {
	return &Listener{
		store:   store,
		hooks:   hooks,
		running: running,
		MaxSize: MAX_IMAGE_SIZE,
	}
}

// SetConstraint limits which firmware versions are accepted, e.g. "^1.x".
func (l *Listener) SetConstraint(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return err
	}
	l.constraint = c
	return nil
}

// Handle is polled by the control loop. It returns true once after an
// update has completed.
func (l *Listener) Handle() bool {
	return atomic.CompareAndSwapInt32(&l.pending, 1, 0)
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !atomic.CompareAndSwapInt32(&l.busy, 0, 1) {
		l.fail(w, r, http.StatusConflict, ErrBegin, errors.New("an update is already in progress"))
		return
	}
	defer atomic.StoreInt32(&l.busy, 0)

	if l.Authorize != nil {
		if err := l.Authorize(r); err != nil {
			l.fail(w, r, http.StatusUnauthorized, ErrAuth, err)
			return
		}
	}

	kind := Kind(r.URL.Query().Get("target"))
	if kind == "" {
		kind = KindFirmware
	}
	if kind != KindFirmware && kind != KindFilesystem {
		l.fail(w, r, http.StatusBadRequest, ErrBegin, errors.Errorf("unknown target %q", kind))
		return
	}

	if l.hooks.OnStart != nil {
		l.hooks.OnStart(kind)
	}

	version, err := l.checkVersion(r, kind)
	if err != nil {
		l.fail(w, r, http.StatusConflict, ErrBegin, err)
		return
	}

	var p partition.Partition
	if kind == KindFirmware {
		p, err = l.store.NextUpdatePartition()
	} else {
		p, err = l.store.FindFirst(partition.SubTypeData)
	}
	if err != nil {
		l.fail(w, r, http.StatusInternalServerError, ErrBegin, err)
		return
	}

	if r.ContentLength > l.MaxSize {
		l.fail(w, r, http.StatusRequestEntityTooLarge, ErrBegin, errors.Errorf("image too large: %d bytes", r.ContentLength))
		return
	}

	body := http.MaxBytesReader(w, r.Body, l.MaxSize)
	n, err := l.store.WriteImage(p, version.String(), body)
	if err != nil {
		code := ErrReceive
		if errors.Cause(err) == io.ErrUnexpectedEOF {
			code = ErrConnect
		}
		l.fail(w, r, http.StatusBadRequest, code, err)
		return
	}
	if n == 0 {
		l.fail(w, r, http.StatusBadRequest, ErrEnd, errors.New("empty image"))
		return
	}

	if kind == KindFirmware {
		if err = l.store.SetBootPartition(p); err != nil {
			l.fail(w, r, http.StatusInternalServerError, ErrEnd, err)
			return
		}
	}

	if l.hooks.OnComplete != nil {
		l.hooks.OnComplete()
	}
	atomic.StoreInt32(&l.pending, 1)

	render.JSON(w, r, Result{
		Target:    kind,
		Partition: p.Label,
		Version:   version.String(),
		Size:      n,
	})
}

func (l *Listener) checkVersion(r *http.Request, kind Kind) (*semver.Version, error) {
	raw := r.Header.Get(VERSION_HEADER)
	if raw == "" {
		return nil, errors.Errorf("missing %s header", VERSION_HEADER)
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid firmware version")
	}
	if kind != KindFirmware {
		return version, nil
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if !force && l.running != nil && !version.GreaterThan(l.running) {
		return nil, deverrors.VersionError{Version: version.String(), Running: l.running.String()}
	}
	if l.constraint != nil && !l.constraint.Check(version) {
		return nil, errors.Errorf("firmware %s is not allowed on this device", version)
	}
	return version, nil
}

func (l *Listener) fail(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, err error) {
	if l.hooks.OnError != nil {
		l.hooks.OnError(code, err)
	}
	render.Status(r, status)
	render.JSON(w, r, Result{Error: err.Error()})
}
