package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/norbert/pkg/config"
	"github.com/lk2023060901/norbert/pkg/configloader"
	"github.com/lk2023060901/norbert/pkg/etcd"
)

const etcdTimeout = 10 * time.Second

// putter *etcd.KV 实现了它
type putter interface {
	Put(ctx context.Context, key, value string) error
}

// lister *etcd.KV 实现了它
type lister interface {
	List(ctx context.Context, prefix string) ([]*etcd.KeyValue, error)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage module configs stored in etcd",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "push <relPath> <file>",
		Short: "Upload a module config file to the etcd config source",
		Long: `Upload <file> under the configured etcd prefix so that modules reading
<relPath> (for example Tumblr/Config.json) receive its content.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEtcd(func(kv *etcd.KV, prefix string) error {
				key, err := pushConfig(cmd.Context(), kv, prefix, args[0], args[1])
				if err != nil {
					return err
				}
				cmd.Printf("pushed %s to %s\n", args[1], key)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List module configs stored under the etcd prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEtcd(func(kv *etcd.KV, prefix string) error {
				return listConfigs(cmd, kv, prefix)
			})
		},
	})
	return cmd
}

// withEtcd 按进程配置连接 etcd，prefix 已规范化
func withEtcd(fn func(kv *etcd.KV, prefix string) error) error {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return err
	}
	etcdCfg := cfg.ConfigSource.Etcd
	etcdCfg.ApplyDefaults()
	client, err := etcd.New(&etcdCfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(client.KV(), configloader.NormalizePrefix(cfg.ConfigSource.Prefix))
}

// pushConfig 校验文件可解析后写入 prefix/relPath
func pushConfig(ctx context.Context, p putter, prefix, relPath, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", file)
	}

	var probe any
	mem := configloader.NewEtcdLoaderKV(staticKV(data), prefix, etcdTimeout)
	if err := mem.Load(relPath, &probe); err != nil {
		return "", err
	}
	key, err := mem.Key(relPath)
	if err != nil {
		return "", err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, etcdTimeout)
	defer cancel()
	if err := p.Put(ctx, key, string(data)); err != nil {
		return "", errors.Wrapf(err, "put %s", key)
	}
	return key, nil
}

// listConfigs 输出前缀下的相对路径、版本与大小
func listConfigs(cmd *cobra.Command, l lister, prefix string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, etcdTimeout)
	defer cancel()

	kvs, err := l.List(ctx, prefix)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tVERSION\tBYTES")
	for _, kv := range kvs {
		fmt.Fprintf(w, "%s\t%d\t%d\n", strings.TrimPrefix(kv.Key, prefix), kv.Version, len(kv.Value))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Printf("%d config(s) under %s\n", len(kvs), prefix)
	return nil
}

// staticKV 任意键都返回同一内容，用于推送前的解析校验
type staticKV []byte

func (s staticKV) Get(_ context.Context, key string) (*etcd.KeyValue, error) {
	return &etcd.KeyValue{Key: key, Value: s}, nil
}
