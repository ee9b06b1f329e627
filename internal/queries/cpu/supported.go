// Package cpu answers which server CPU models a cluster may be configured with.
package cpu

import (
	"sort"
	"strings"

	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/faults"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/versioning"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

const QuerySupportedCpuList command.QueryType = "GetSupportedCpuList"

// ServerCpu is one entry of the CPU dictionary.
type ServerCpu struct {
	Name   string   `yaml:"name" json:"name"`
	Level  int      `yaml:"level" json:"level"`
	Vendor string   `yaml:"vendor" json:"vendor,omitempty"`
	Flags  []string `yaml:"flags" json:"flags,omitempty"`
}

type Params struct {
	MaxCpuName string `json:"max_cpu_name,omitempty"`
}

func Register(reg *command.Registry, cfg configstore.Reader) error {
	return command.RegisterQuery(reg, command.QueryDefinition{Type: QuerySupportedCpuList},
		func(p Params, _ command.ExecContext) command.Query {
			return &SupportedCpuList{cfg: cfg, maxName: strings.TrimSpace(p.MaxCpuName)}
		})
}

// SupportedCpuList lists the CPUs of the latest dictionary version whose level
// does not exceed that of the named CPU. An empty or unknown name lists all.
type SupportedCpuList struct {
	cfg     configstore.Reader
	maxName string
}

func (q *SupportedCpuList) Type() command.QueryType { return QuerySupportedCpuList }

func (q *SupportedCpuList) PermissionSubjects() permissions.Requirement {
	return permissions.AllOf(permissions.System(access.ActionGroupLogin))
}

func (q *SupportedCpuList) Run(dbctx.Context) (any, error) {
	return Supported(q.cfg, q.maxName)
}

// LatestDictionaryVersion is the highest version carrying a CPU list.
func LatestDictionaryVersion(cfg configstore.Reader) string {
	return versioning.Highest(cfg.Versions(configstore.ServerCPUList))
}

func Supported(cfg configstore.Reader, maxName string) ([]ServerCpu, error) {
	const op = "cpu.supported"
	version := LatestDictionaryVersion(cfg)
	if version == "" {
		return []ServerCpu{}, nil
	}
	var all []ServerCpu
	if err := cfg.DecodeForVersion(configstore.ServerCPUList, version, &all); err != nil {
		return nil, faults.Wrap(faults.CodeInternal, op, err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Level < all[j].Level })

	maxLevel := -1
	for _, c := range all {
		if maxName != "" && strings.EqualFold(c.Name, maxName) {
			maxLevel = c.Level
			break
		}
	}
	out := make([]ServerCpu, 0, len(all))
	for _, c := range all {
		if maxLevel >= 0 && c.Level > maxLevel {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
