package model

import (
	"encoding/json"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// Artifact は学習済みモデルを永続化するためのバージョン付きエンベロープ
type Artifact struct {
	// ModelType はモデルの種類（EmpiricalBayesHarmonizer, RiemannianHarmonizer等）
	ModelType string `json:"model_type"`

	// Version はペイロード形式のバージョン（互換性チェック用）
	Version string `json:"version"`

	// Payload はモデル固有のJSON
	Payload json.RawMessage `json:"payload"`

	// Metadata は追加のメタデータ（学習時の統計等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewArtifact はpayloadをJSONエンコードしてArtifactを作成する
func NewArtifact(modelType, version string, payload interface{}, metadata map[string]interface{}) (*Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", modelType)
	}
	return &Artifact{
		ModelType: modelType,
		Version:   version,
		Payload:   raw,
		Metadata:  metadata,
	}, nil
}

// ToJSON はArtifactをJSON形式にシリアライズ
func (a *Artifact) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// FromJSON はJSON形式からArtifactをデシリアライズ
func (a *Artifact) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, a); err != nil {
		return errors.Wrap(err, "failed to decode artifact")
	}
	return nil
}

// Validate はArtifactの妥当性を検証
func (a *Artifact) Validate() error {
	if a.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", a.ModelType)
	}
	if a.Version == "" {
		return errors.NewValidationError("version", "is required", a.Version)
	}
	if len(a.Payload) == 0 {
		return errors.NewValidationError("payload", "is required", nil)
	}
	return nil
}

// Decode は期待するモデル種類とバージョンを確認してからpayloadをデコードする
func (a *Artifact) Decode(modelType, version string, dst interface{}) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ModelType != modelType {
		return errors.NewValidationError("model_type", "unexpected model type, want "+modelType, a.ModelType)
	}
	if a.Version != version {
		return errors.NewValidationError("version", "unsupported version, want "+version, a.Version)
	}
	if err := json.Unmarshal(a.Payload, dst); err != nil {
		return errors.Wrapf(err, "failed to decode %s payload", modelType)
	}
	return nil
}
