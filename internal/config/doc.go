// Package config 定义 warden 工作目录中的三组 YAML 配置及其默认值与校验规则。
package config
