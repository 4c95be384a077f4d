package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

const extension = ".ckpt"

// Store keeps checkpoints as snappy-compressed JSON files in one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+extension)
}

// Save writes the checkpoint under name, replacing any previous one. The file is
// written to a temporary name first so a failed save leaves the old checkpoint intact.
func (s *Store) Save(name string, c *Checkpoint) error {
	if name == "" {
		return errors.New("checkpoint name is empty")
	}
	if c.Metadata.Framework == "" {
		c.Metadata.Framework = framework
		c.Metadata.Version = formatVersion
		c.Metadata.CreatedAt = time.Now()
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create checkpoint directory %s", s.dir)
	}

	tmp, err := os.CreateTemp(s.dir, name+extension+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	defer os.Remove(tmp.Name())

	w := snappy.NewBufferedWriter(tmp)
	if err := json.NewEncoder(w).Encode(c); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode checkpoint")
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to flush checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close checkpoint file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path(name)), "failed to move checkpoint into place")
}

func (s *Store) Load(name string) (*Checkpoint, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open checkpoint %q", name)
	}
	defer f.Close()

	var c Checkpoint
	if err := json.NewDecoder(snappy.NewReader(f)).Decode(&c); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint %q", name)
	}
	return &c, nil
}

func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}
