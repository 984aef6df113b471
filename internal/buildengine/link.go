package buildengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/forgecore/forge/internal/buildindex"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/internal/ferr"
)

// assetFileMagic/assetFileVersion tag the composed blob so a reader can
// tell a linked asset file apart from a bare compiler output. The exact
// on-disk shape (header + length-prefixed reference list + body) is not
// grounded in a retrieved source file — write_assetfile's body lives
// outside the retrieval pack — so it is modelled directly on spec section
// 4.6 point 6 ("a small header + the set of its outgoing references + the
// blob body"), using the same big-endian length-prefix framing
// pkg/indexer/composite.go's Compose/Decompose already establishes as this
// codebase's idiom for self-delimiting binary records.
var assetFileMagic = [4]byte{'F', 'A', 'S', 'F'}

const assetFileVersion = uint32(1)

// composeAssetFile writes magic + version + reference count + each
// reference's length-prefixed path + the body bytes.
func composeAssetFile(references []string, body []byte) []byte {
	var buf bytes.Buffer
	buf.Write(assetFileMagic[:])
	writeUint32(&buf, assetFileVersion)
	writeUint32(&buf, uint32(len(references)))
	for _, ref := range references {
		writeUint32(&buf, uint32(len(ref)))
		buf.WriteString(ref)
	}
	buf.Write(body)
	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// Link opens each compiled resource's blob, composes an asset file
// embedding its outgoing references, writes the composed blob back to the
// content store under a new identifier, and returns one LinkedResource
// (resource path plus composed identifier) per resource (spec section 4.6
// point 6). inlineThreshold is the configured
// inline-content cutoff (internal/config's ContentStoreConfig.InlineThreshold)
// the minted identifiers use.
func Link(ctx context.Context, p content.Provider, inlineThreshold int, resources []buildindex.CompiledResourceInfo, refs []buildindex.CompiledResourceReference) ([]LinkedResource, error) {
	refsByPath := make(map[string][]string)
	for _, r := range refs {
		refsByPath[r.From.String()] = append(refsByPath[r.From.String()], r.To.String())
	}

	linked := make([]LinkedResource, 0, len(resources))
	for _, res := range resources {
		body, err := readAll(ctx, p, res.Identifier)
		if err != nil {
			return nil, ferr.Wrap(ferr.CodeAssetStoreError, "linking "+res.Path.String(), err)
		}
		composed := composeAssetFile(refsByPath[res.Path.String()], body)
		newID := contentid.NewFromDataWithThreshold(composed, inlineThreshold)
		exists, err := p.Exists(ctx, newID)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := content.WriteAndCommit(ctx, p, newID, composed); err != nil {
				return nil, err
			}
		}
		linked = append(linked, LinkedResource{Path: res.Path, Identifier: newID})
	}
	return linked, nil
}

// LinkedResource is one asset-file-composed output ready for the manifest.
type LinkedResource struct {
	Path       buildindex.ResourcePathID
	Identifier contentid.ID
}

func readAll(ctx context.Context, p content.Provider, id contentid.ID) ([]byte, error) {
	r, err := p.GetContentReader(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
