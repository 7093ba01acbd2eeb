// Package buildinfo 解析编译期注入的版本号与构建时间。
package buildinfo

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	xerrors "warden/internal/errors"
)

// 通过 -ldflags "-X warden/internal/buildinfo.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	Timestamp = ""
)

// TimestampLayout 是构建时间使用的格式。
const TimestampLayout = time.RFC3339

// Properties 描述当前二进制的构建属性。
type Properties struct {
	Version   *semver.Version
	Timestamp time.Time
}

// Load 解析包级变量中的构建属性。
func Load() (Properties, error) {
	return Parse(Version, Timestamp)
}

// Parse 校验版本号与时间戳，版本号非法时返回 CodeInvalidBuild。
func Parse(version, timestamp string) (Properties, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return Properties{}, xerrors.Wrap(xerrors.CodeInvalidBuild, err, fmt.Sprintf("版本号 %q 不合法", version))
	}
	props := Properties{Version: v}
	if strings.TrimSpace(timestamp) == "" {
		return props, nil
	}
	ts, err := time.Parse(TimestampLayout, timestamp)
	if err != nil {
		return Properties{}, xerrors.Wrap(xerrors.CodeInvalidBuild, err, fmt.Sprintf("构建时间 %q 不合法", timestamp))
	}
	props.Timestamp = ts.UTC()
	return props, nil
}

// String 返回启动横幅中使用的描述。
func (p Properties) String() string {
	if p.Version == nil {
		return "unknown"
	}
	if p.Timestamp.IsZero() {
		return p.Version.String()
	}
	return fmt.Sprintf("%s (built %s)", p.Version, p.Timestamp.Format(TimestampLayout))
}
