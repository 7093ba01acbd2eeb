package integrity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PinsFile 保存首次见到的扩展摘要。
const PinsFile = "integrity.yml"

type pinDocument struct {
	Pins map[string]string `yaml:"pins"`
}

func loadPins(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取摘要固定文件失败: %w", err)
	}
	var doc pinDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("解析摘要固定文件失败: %w", err)
	}
	if doc.Pins == nil {
		doc.Pins = map[string]string{}
	}
	return doc.Pins, nil
}

func savePins(path string, pins map[string]string) error {
	raw, err := yaml.Marshal(pinDocument{Pins: pins})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".integrity-*.yml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
