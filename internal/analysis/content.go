package analysis

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// maxScanBytes 限制单个文件或归档条目读入内存的大小，超出即视为检查失败。
var maxScanBytes int64 = 64 << 20

var zipMagic = []byte("PK\x03\x04")

// blob 是待扫描的一段内容，归档中的条目以 location 标识。
type blob struct {
	location string
	data     []byte
}

// readBlobs 读取扩展内容。zip/jar 归档额外展开每个条目。
// 超过 maxScanBytes 的普通文件或归档条目返回错误，不做截断扫描；
// 以 zip 魔数开头却无法解析的文件同样返回错误。
// 归档本身超限时只扫描条目。
func readBlobs(path string) ([]blob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	archive := bytes.Equal(head[:n], zipMagic)

	var blobs []blob
	if info.Size() <= maxScanBytes {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		data, err := readBounded(file, "")
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob{data: data})
	} else if !archive {
		return nil, fmt.Errorf("文件大小 %d 超过扫描上限 %d", info.Size(), maxScanBytes)
	}
	if !archive {
		return blobs, nil
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("解析归档失败: %w", err)
	}
	defer reader.Close()
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > uint64(maxScanBytes) {
			return nil, fmt.Errorf("归档条目 %s 大小 %d 超过扫描上限 %d", f.Name, f.UncompressedSize64, maxScanBytes)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("打开归档条目 %s 失败: %w", f.Name, err)
		}
		entry, err := readBounded(rc, f.Name)
		rc.Close()
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob{location: f.Name, data: entry})
	}
	return blobs, nil
}

// readBounded 读取至多 maxScanBytes 字节，多出一个字节即报错。
func readBounded(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxScanBytes+1))
	if err != nil {
		if location == "" {
			return nil, err
		}
		return nil, fmt.Errorf("读取归档条目 %s 失败: %w", location, err)
	}
	if int64(len(data)) > maxScanBytes {
		if location == "" {
			return nil, fmt.Errorf("文件内容超过扫描上限 %d", maxScanBytes)
		}
		return nil, fmt.Errorf("归档条目 %s 超过扫描上限 %d", location, maxScanBytes)
	}
	return data, nil
}
