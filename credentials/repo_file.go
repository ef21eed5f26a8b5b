package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/internal/utils"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
)

const filePerm fs.FileMode = 0o600

// FileRepo stores the registration as a JSON document readable only by the owner.
type FileRepo struct {
	path string
}

func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path}
}

func (r *FileRepo) Path() string {
	return r.path
}

func (r *FileRepo) Load() (oauthmodel.Registration, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "[credentials FileRepo.Load] read %s", r.path)
	}

	var reg oauthmodel.Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("[credentials FileRepo.Load] decode %s: %w: %v", r.path, apperrors.ErrCorruptCredentials, err)
	}
	if reg == nil {
		return nil, apperrors.ErrNotFound
	}
	return reg, nil
}

func (r *FileRepo) Save(reg oauthmodel.Registration) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("[credentials FileRepo.Save] encode: %w", err)
	}
	if err := utils.WriteFileAtomic(r.path, data, filePerm); err != nil {
		return fmt.Errorf("[credentials FileRepo.Save] %w", err)
	}
	return nil
}

func (r *FileRepo) Delete() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[credentials FileRepo.Delete] %w", err)
	}
	return nil
}
