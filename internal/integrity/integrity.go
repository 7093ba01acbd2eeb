// Package integrity 校验扩展的声明摘要、签名以及固定摘要。
package integrity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"warden/internal/config"
	"warden/internal/gate"
	"warden/internal/i18n"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// Violation 描述一个扩展未通过的检查。
type Violation struct {
	Extension string
	Reason    string
}

// Gate 是完整性检查。
type Gate struct {
	cfg      config.PluginsIntegrity
	pinsPath string
	signers  map[common.Address]struct{}
	log      *slog.Logger
	audit    *slog.Logger
}

// New 创建完整性检查，固定摘要保存在 workDir/integrity.yml。
func New(cfg config.PluginsIntegrity, workDir string) *Gate {
	signers := make(map[common.Address]struct{}, len(cfg.TrustedSigners))
	for _, s := range cfg.TrustedSigners {
		signers[common.HexToAddress(s)] = struct{}{}
	}
	return &Gate{
		cfg:      cfg,
		pinsPath: filepath.Join(workDir, PinsFile),
		signers:  signers,
		log:      logger.Named("integrity"),
		audit:    logger.Audit(),
	}
}

// Check 逐个校验扩展。存在问题且配置要求中止时返回 Abort，否则仅记录警告。
func (g *Gate) Check(ctx context.Context, extensions *plugin.Context) gate.Verdict {
	violations, err := g.Inspect(ctx, extensions)
	if err != nil {
		g.log.Error("完整性检查无法完成", slog.Any("error", err))
		return gate.Abort
	}
	for _, v := range violations {
		g.log.Warn("扩展完整性校验未通过", slog.String("extension", v.Extension), slog.String("reason", v.Reason))
		g.audit.Warn("integrity violation", slog.String("extension", v.Extension), slog.String("reason", v.Reason))
	}
	if len(violations) == 0 {
		return gate.Pass
	}
	if g.cfg.AbortServerStartup {
		return gate.Abort
	}
	g.log.Warn(i18n.T(i18n.IntegrityWarnContinue))
	return gate.Pass
}

// Inspect 返回全部问题，仅在无法读取固定摘要或上下文取消时返回错误。
func (g *Gate) Inspect(ctx context.Context, extensions *plugin.Context) ([]Violation, error) {
	var pins map[string]string
	if g.cfg.PinDigests {
		loaded, err := loadPins(g.pinsPath)
		if err != nil {
			return nil, err
		}
		pins = loaded
	}
	var (
		violations []Violation
		pinned     bool
	)
	for _, ext := range extensions.Extensions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reasons := g.inspectOne(ext)
		if pins != nil && len(reasons) == 0 {
			previous, ok := pins[ext.Name]
			switch {
			case !ok:
				pins[ext.Name] = ext.DigestHex()
				pinned = true
			case !strings.EqualFold(previous, ext.DigestHex()):
				reasons = append(reasons, fmt.Sprintf("摘要与固定值 %s 不一致", previous))
			}
		}
		for _, r := range reasons {
			violations = append(violations, Violation{Extension: ext.Name, Reason: r})
		}
	}
	if pinned {
		if err := savePins(g.pinsPath, pins); err != nil {
			g.log.Warn("保存固定摘要失败", slog.String("path", g.pinsPath), slog.Any("error", err))
		}
	}
	return violations, nil
}

func (g *Gate) inspectOne(ext plugin.Descriptor) []string {
	var reasons []string
	if ext.ManifestErr != nil {
		reasons = append(reasons, "清单无效: "+ext.ManifestErr.Error())
	}
	if declared, ok := ext.Manifest.DeclaredDigest(); ok && declared != ext.Digest {
		reasons = append(reasons, fmt.Sprintf("摘要 %s 与清单声明的 %x 不一致", ext.DigestHex(), declared))
	}
	if len(g.signers) == 0 {
		return reasons
	}
	signer, err := recoverSigner(ext.Path)
	if err != nil {
		return append(reasons, "签名无效: "+err.Error())
	}
	if _, ok := g.signers[signer]; !ok {
		reasons = append(reasons, fmt.Sprintf("签名者 %s 不受信任", signer.Hex()))
	}
	return reasons
}

// recoverSigner 从 <file>.sig 中恢复对 keccak256(文件内容) 签名的地址。
func recoverSigner(path string) (common.Address, error) {
	sig, err := readSignature(path + plugin.SignatureSuffix)
	if err != nil {
		return common.Address{}, err
	}
	hash, err := keccakFile(path)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func readSignature(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("缺少签名文件")
		}
		return nil, err
	}
	if len(raw) == crypto.SignatureLength {
		return normalizeRecovery(raw), nil
	}
	text := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	sig, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("签名不是十六进制: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("签名长度 %d 不正确", len(sig))
	}
	return normalizeRecovery(sig), nil
}

// normalizeRecovery 兼容以 27/28 表示恢复标识的签名。
func normalizeRecovery(sig []byte) []byte {
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	return sig
}

func keccakFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	h := crypto.NewKeccakState()
	if _, err := io.Copy(h, file); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
