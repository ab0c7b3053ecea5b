package drive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/sku-bundler/internal/mediatype"
)

// defaultMaxDepth bounds folder recursion. The traversal is a worklist, not
// call-stack recursion, so the bound is a policy choice rather than a stack
// limit.
const defaultMaxDepth = 10

// Asset is a leaf file discovered by the crawl, ready to be downloaded.
// ContainerPath is the folder chain from the root, "/"-joined.
type Asset struct {
	ID            string
	Name          string
	MIMEType      string
	ContainerPath string
}

// Result is the outcome of one crawl: the discovered leaf assets and the
// folder-id → display-name registry. A partially failed crawl still returns
// whatever was discovered before the failing branches.
type Result struct {
	Assets   []Asset
	Registry map[string]string
}

// Crawler walks a Drive folder tree breadth-first with bounded fan-out.
type Crawler struct {
	client      *Client
	concurrency int
	maxDepth    int
}

// NewCrawler wires a crawler over the given client. Concurrency bounds how
// many sibling folders are listed at once; values below 1 mean 1.
func NewCrawler(client *Client, concurrency int) *Crawler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Crawler{client: client, concurrency: concurrency, maxDepth: defaultMaxDepth}
}

type folderNode struct {
	id    string
	path  string
	depth int
}

// Crawl lists the root folder and every subfolder underneath it, collecting
// children that pass the image classification test. Sibling folders are
// listed concurrently; a failing branch is logged and contributes nothing,
// but does not stop its siblings. Two error classes abort the whole crawl:
// ErrInvalidCredentials and a root that cannot be listed at all (wrapped as
// ErrBadRoot).
func (c *Crawler) Crawl(ctx context.Context, rootID, rootName string) (Result, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return Result{}, fmt.Errorf("%w: empty folder id", ErrBadRoot)
	}
	if rootName == "" {
		rootName = rootID
	}

	res := Result{Registry: map[string]string{rootID: rootName}}

	rootChildren, err := c.client.ListChildren(ctx, rootID)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrBadRoot, err)
	}

	var mu sync.Mutex
	level := c.classify(rootChildren, folderNode{id: rootID, path: rootName, depth: 0}, &mu, &res)

	for len(level) > 0 {
		var next []folderNode

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)

		for _, node := range level {
			node := node
			g.Go(func() error {
				children, err := c.client.ListChildren(gctx, node.id)
				if err != nil {
					// Credential rejection and cancellation stop everything;
					// any other failure costs only this branch.
					if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, context.Canceled) {
						return err
					}
					log.Warn().Err(err).Str("folder", node.path).Msg("Folder listing failed, skipping branch")
					return nil
				}

				sub := c.classify(children, node, &mu, &res)
				mu.Lock()
				next = append(next, sub...)
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return Result{}, err
		}
		level = next
	}

	log.Info().Str("root", rootName).Int("assets", len(res.Assets)).
		Int("folders", len(res.Registry)).Msg("Crawl complete")
	return res, nil
}

// classify splits a folder's children into subfolders to visit and leaf
// assets to collect. The registry entry for a subfolder is written before it
// is ever visited, so even a partially failed crawl yields a usable mapping.
func (c *Crawler) classify(children []Child, parent folderNode, mu *sync.Mutex, res *Result) []folderNode {
	var subfolders []folderNode

	mu.Lock()
	defer mu.Unlock()

	for _, child := range children {
		if child.IsFolder() {
			if parent.depth+1 > c.maxDepth {
				log.Warn().Str("folder", child.Name).Int("depth", parent.depth+1).
					Msg("Max crawl depth reached, skipping subtree")
				continue
			}
			res.Registry[child.ID] = child.Name
			subfolders = append(subfolders, folderNode{
				id:    child.ID,
				path:  parent.path + "/" + child.Name,
				depth: parent.depth + 1,
			})
			continue
		}

		if mediatype.IsImageExt(path.Ext(child.Name)) || mediatype.IsImageMIME(child.MIMEType) {
			res.Assets = append(res.Assets, Asset{
				ID:            child.ID,
				Name:          child.Name,
				MIMEType:      child.MIMEType,
				ContainerPath: parent.path,
			})
		}
		// Anything else (docs, archives, unknown types) is silently skipped.
	}

	return subfolders
}
