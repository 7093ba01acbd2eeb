// Package i18n 提供启动流程中面向运维人员的本地化提示文本。
package i18n

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key 是消息目录中的条目名称。
type Key string

var (
	supported = []language.Tag{language.English, language.Chinese}
	matcher   = language.NewMatcher(supported)
	builder   = catalog.NewBuilder(catalog.Fallback(language.English))
	printer   atomic.Pointer[message.Printer]
)

func init() {
	register(language.English, english)
	register(language.Chinese, chinese)
	printer.Store(message.NewPrinter(language.English, message.Catalog(builder)))
}

func register(tag language.Tag, messages map[Key]string) {
	for key, msg := range messages {
		if err := builder.SetString(tag, string(key), msg); err != nil {
			panic(fmt.Sprintf("i18n: register %s/%s: %v", tag, key, err))
		}
	}
}

// SetLocale 切换全局语言，未知语言回退到英文。
func SetLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("解析语言 %q 失败: %w", locale, err)
	}
	matched, _, _ := matcher.Match(tag)
	base, _ := matched.Base()
	printer.Store(message.NewPrinter(language.Make(base.String()), message.Catalog(builder)))
	return nil
}

// T 返回当前语言下的格式化消息。
func T(key Key, args ...any) string {
	return printer.Load().Sprintf(string(key), args...)
}
