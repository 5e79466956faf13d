package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VanDung-dev/AgriDx-Engine/cache"
	"github.com/VanDung-dev/AgriDx-Engine/rest"
)

var errCacheMiss = errors.New("cache miss")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the fresh cached answer for a GET path",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheGet,
}

var cacheKeyCmd = &cobra.Command{
	Use:   "key <path>",
	Short: "Print the cache key for a GET path",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheKey,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached answer",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	for _, c := range []*cobra.Command{cacheGetCmd, cacheKeyCmd} {
		c.Flags().StringArrayP("param", "p", nil, "query parameter key=value (repeatable)")
	}
	cacheCmd.AddCommand(cacheGetCmd, cacheKeyCmd, cacheClearCmd)
}

func cacheIdentity(cmd *cobra.Command, baseURL, path string) (cache.Identity, error) {
	pairs, _ := cmd.Flags().GetStringArray("param")
	params, err := parseParams(pairs)
	if err != nil {
		return cache.Identity{}, err
	}
	client, err := rest.New(baseURL)
	if err != nil {
		return cache.Identity{}, err
	}
	return cache.Identity{Method: http.MethodGet, URL: client.URL(path), Params: params}, nil
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, "cache")
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := cacheIdentity(cmd, a.cfg.BaseURL, args[0])
	if err != nil {
		return err
	}
	c, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	data, hit, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if !hit {
		return errCacheMiss
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return nil
}

func runCacheKey(cmd *cobra.Command, args []string) error {
	id, err := cacheIdentity(cmd, viper.GetString("base_url"), args[0])
	if err != nil {
		return err
	}
	key, err := cache.Key(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, "cache")
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	if err := c.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s cache\n", a.cfg.CacheBackend)
	return nil
}
