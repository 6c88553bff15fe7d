package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"
)

// LocalStorage trzyma bloby w jednym płaskim katalogu. Nazwa blobu jest
// generowana raz przy zapisie; zmiana nazwy wpisu nie dotyka pliku na dysku.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.ReplaceAll(name, string(os.PathSeparator), "_")
}

// NewBlobRef generuje odporną na kolizje nazwę blobu:
// <unix-ms>-<losowy sufiks>-<oryginalna nazwa>.
func NewBlobRef(originalName string) (string, error) {
	generateID, err := nanoid.Standard(12)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), generateID(), sanitizeName(originalName)), nil
}

func (ls *LocalStorage) pathFor(blobRef string) string {
	return filepath.Join(ls.basePath, filepath.Base(blobRef))
}

// Save zapisuje dane pod wygenerowaną nazwą i zwraca blobRef.
func (ls *LocalStorage) Save(originalName string, data io.Reader) (string, error) {
	blobRef, err := NewBlobRef(originalName)
	if err != nil {
		return "", err
	}

	file, err := os.Create(ls.pathFor(blobRef))
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return "", err
	}

	return blobRef, nil
}

// Copy tworzy fizyczny duplikat blobu pod świeżą nazwą i zwraca nowy blobRef
// wraz z rozmiarem kopii.
func (ls *LocalStorage) Copy(blobRef string, originalName string) (string, int64, error) {
	src, err := os.Open(ls.pathFor(blobRef))
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	newRef, err := NewBlobRef(originalName)
	if err != nil {
		return "", 0, err
	}

	dst, err := os.Create(ls.pathFor(newRef))
	if err != nil {
		return "", 0, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return "", 0, err
	}

	return newRef, written, nil
}

func (ls *LocalStorage) Open(blobRef string) (io.ReadCloser, error) {
	file, err := os.Open(ls.pathFor(blobRef))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s not found: %w", blobRef, err)
		}
		return nil, err
	}

	return file, nil
}

// Delete usuwa blob z dysku. Brak pliku nie jest błędem.
func (ls *LocalStorage) Delete(blobRef string) error {
	err := os.Remove(ls.pathFor(blobRef))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
