package partition

import (
	"io"
	"os"
	"path/filepath"

	"github.com/asdine/storm/v3"
	"github.com/pkg/errors"

	deverrors "github.com/CodedInternet/rcdrive/onboard/errors"
)

const (
	SubTypeFactory = "factory"
	SubTypeOTA0    = "ota_0"
	SubTypeOTA1    = "ota_1"
	SubTypeData    = "spiffs"

	bootBucket = "boot"
	bootNext   = "next"
	bootRun    = "running"
)

// Partition is one image slot. Images live on disk next to the database,
// the table only records what is where.
type Partition struct {
	ID      int    `storm:"id,increment"`
	Label   string `storm:"unique"`
	SubType string `storm:"index"`
	Version string
	Image   string
	Size    int64
}

type Table struct {
	db  *storm.DB
	dir string
}

// Open opens (or creates) the partition database at path and stores
// images under imageDir.
func Open(path, imageDir string) (*Table, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := storm.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open partition table")
	}

	t, err := New(db, imageDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func New(db *storm.DB, imageDir string) (*Table, error) {
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return nil, err
	}
	if err := db.Init(&Partition{}); err != nil {
		return nil, err
	}
	return &Table{db: db, dir: imageDir}, nil
}

func (t *Table) Close() error {
	return t.db.Close()
}

// Seed creates the default layout if the table is empty. The factory
// slot holds the recovery image, ota_0 is marked as running.
func (t *Table) Seed(running string) error {
	count, err := t.db.Count(&Partition{})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, p := range []Partition{
		{Label: "factory", SubType: SubTypeFactory, Version: running},
		{Label: "app0", SubType: SubTypeOTA0, Version: running},
		{Label: "app1", SubType: SubTypeOTA1},
		{Label: "data", SubType: SubTypeData},
	} {
		p := p
		p.Image = filepath.Join(t.dir, p.Label+".bin")
		if err := t.db.Save(&p); err != nil {
			return errors.Wrapf(err, "unable to create partition %s", p.Label)
		}
	}

	return t.db.Set(bootBucket, bootRun, "app0")
}

func (t *Table) All() ([]Partition, error) {
	var parts []Partition
	err := t.db.All(&parts)
	return parts, err
}

func (t *Table) Get(label string) (Partition, error) {
	var p Partition
	err := t.db.One("Label", label, &p)
	return p, err
}

// FindFirst returns the first partition of the given subtype.
func (t *Table) FindFirst(subType string) (Partition, error) {
	var parts []Partition
	err := t.db.Find("SubType", subType, &parts, storm.Limit(1))
	if err == storm.ErrNotFound || (err == nil && len(parts) == 0) {
		return Partition{}, deverrors.PartitionNotFoundError{SubType: subType}
	}
	if err != nil {
		return Partition{}, err
	}
	return parts[0], nil
}

// SetBootPartition selects what runs after the next restart.
func (t *Table) SetBootPartition(p Partition) error {
	if _, err := t.Get(p.Label); err != nil {
		return errors.Wrapf(err, "unknown partition %s", p.Label)
	}
	return t.db.Set(bootBucket, bootNext, p.Label)
}

// BootPartition returns the partition selected for the next restart,
// falling back to the running one.
func (t *Table) BootPartition() (Partition, error) {
	var label string
	if err := t.db.Get(bootBucket, bootNext, &label); err != nil {
		if err != storm.ErrNotFound {
			return Partition{}, err
		}
		return t.Running()
	}
	return t.Get(label)
}

func (t *Table) Running() (Partition, error) {
	var label string
	if err := t.db.Get(bootBucket, bootRun, &label); err != nil {
		return Partition{}, err
	}
	return t.Get(label)
}

// MarkBooted promotes the pending boot selection to running. It is
// called once at startup.
func (t *Table) MarkBooted() error {
	var label string
	if err := t.db.Get(bootBucket, bootNext, &label); err != nil {
		if err == storm.ErrNotFound {
			return nil
		}
		return err
	}
	if err := t.db.Set(bootBucket, bootRun, label); err != nil {
		return err
	}
	return t.db.Delete(bootBucket, bootNext)
}

// NextUpdatePartition picks the ota slot that is not running.
func (t *Table) NextUpdatePartition() (Partition, error) {
	running, err := t.Running()
	if err != nil {
		return Partition{}, err
	}
	if running.SubType == SubTypeOTA0 {
		return t.FindFirst(SubTypeOTA1)
	}
	return t.FindFirst(SubTypeOTA0)
}

// WriteImage stores r as the image for p and records its version.
func (t *Table) WriteImage(p Partition, version string, r io.Reader) (int64, error) {
	tmp := p.Image + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, errors.Wrap(err, "unable to create image")
	}

	n, err := io.Copy(f, r)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		os.Remove(tmp)
		return n, errors.Wrap(err, "unable to write image")
	}

	if err = os.Rename(tmp, p.Image); err != nil {
		os.Remove(tmp)
		return n, err
	}

	p.Version = version
	p.Size = n
	return n, t.db.Update(&p)
}
