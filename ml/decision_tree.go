package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const RegressionTreeType = "regression_tree"

// RegressionTree is a fitted regression tree exported as a flat node list.
// Node 0 is the root.
type RegressionTree struct {
	names []string
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeArtifact struct {
	ModelType    string     `json:"model_type"`
	FeatureNames []string   `json:"feature_names"`
	NFeatures    int        `json:"n_features"`
	Nodes        []TreeNode `json:"nodes"`
}

func NewRegressionTree(names []string, nodes []TreeNode) (*RegressionTree, error) {
	if err := checkLayout(names); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if math.IsNaN(node.Value) || math.IsInf(node.Value, 0) {
				return nil, fmt.Errorf("leaf %d value is not finite", i)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(names) {
			return nil, fmt.Errorf("node %d splits on feature %d, model has %d", i, node.FeatureIdx, len(names))
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			// children always come after their parent, so the walk terminates
			if child <= i || child >= len(nodes) {
				return nil, fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return &RegressionTree{
		names: append([]string(nil), names...),
		nodes: append([]TreeNode(nil), nodes...),
	}, nil
}

func (dt *RegressionTree) FeatureNames() []string {
	return append([]string(nil), dt.names...)
}

func (dt *RegressionTree) FeatureCount() int {
	return len(dt.names)
}

func (dt *RegressionTree) Predict(features []float64) (float64, error) {
	if len(features) != len(dt.names) {
		return 0, fmt.Errorf("feature count mismatch: got %d, model expects %d", len(features), len(dt.names))
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func (dt *RegressionTree) Save(path string) error {
	payload, err := json.MarshalIndent(treeArtifact{
		ModelType:    RegressionTreeType,
		FeatureNames: dt.names,
		NFeatures:    len(dt.names),
		Nodes:        dt.nodes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func loadRegressionTree(path string) (*RegressionTree, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact treeArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if artifact.ModelType != RegressionTreeType {
		return nil, fmt.Errorf("artifact holds %q, not %s", artifact.ModelType, RegressionTreeType)
	}
	if artifact.NFeatures != len(artifact.FeatureNames) {
		return nil, fmt.Errorf("n_features is %d but %d feature names are listed", artifact.NFeatures, len(artifact.FeatureNames))
	}
	return NewRegressionTree(artifact.FeatureNames, artifact.Nodes)
}
