package pncp

import (
	"time"

	"github.com/fernandes-group/tenderscan/internal/model"
)

// Partition identifies one slice of the registry to scan: a publication date
// window, optionally restricted to a state.
type Partition struct {
	DateFrom time.Time
	DateTo   time.Time
	State    string // two-letter UF code, empty for nationwide
}

// Wire types mirror the registry's JSON verbatim. They never leave this
// package; everything downstream works with model.Tender.

type wireOrg struct {
	CNPJ        string `json:"cnpj"`
	RazaoSocial string `json:"razaoSocial"`
}

type wireUnit struct {
	UFSigla       string `json:"ufSigla"`
	MunicipioNome string `json:"municipioNome"`
}

type wireTender struct {
	NumeroControle         string   `json:"numeroControlePNCPCompra"`
	OrgaoEntidade          wireOrg  `json:"orgaoEntidade"`
	UnidadeOrgao           wireUnit `json:"unidadeOrgao"`
	ObjetoCompra           string   `json:"objetoCompra"`
	InformacaoComplementar string   `json:"informacaoComplementar"`
	ValorTotalEstimado     float64  `json:"valorTotalEstimado"`
	ValorTotalHomologado   float64  `json:"valorTotalHomologado"`
	ModalidadeID           int      `json:"modalidadeId"`
	ModalidadeNome         string   `json:"modalidadeNome"`
	AnoCompra              int      `json:"anoCompra"`
	SequencialCompra       int      `json:"sequencialCompra"`
	DataPublicacaoPNCP     string   `json:"dataPublicacaoPncp"`
}

type listingResponse struct {
	Data             []wireTender `json:"data"`
	TotalRegistros   int          `json:"totalRegistros"`
	TotalPaginas     int          `json:"totalPaginas"`
	NumeroPagina     int          `json:"numeroPagina"`
	PaginasRestantes int          `json:"paginasRestantes"`
}

type wireItem struct {
	NumeroItem            int     `json:"numeroItem"`
	Descricao             string  `json:"descricao"`
	MaterialOuServico     string  `json:"materialOuServico"`
	Quantidade            float64 `json:"quantidade"`
	ValorUnitarioEstimado float64 `json:"valorUnitarioEstimado"`
}

type loginRequest struct {
	Login string `json:"login"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (w wireTender) toModel() model.Tender {
	t := model.Tender{
		ControlNumber:  w.NumeroControle,
		OrgID:          w.OrgaoEntidade.CNPJ,
		OrgName:        w.OrgaoEntidade.RazaoSocial,
		Title:          w.ObjetoCompra,
		Description:    w.InformacaoComplementar,
		EstimatedValue: w.ValorTotalEstimado,
		AwardedValue:   w.ValorTotalHomologado,
		ModalityID:     w.ModalidadeID,
		ModalityName:   w.ModalidadeNome,
		Year:           w.AnoCompra,
		Sequence:       w.SequencialCompra,
		State:          w.UnidadeOrgao.UFSigla,
		City:           w.UnidadeOrgao.MunicipioNome,
	}
	if w.DataPublicacaoPNCP != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, w.DataPublicacaoPNCP); err == nil {
				t.PublishedAt = ts
				break
			}
		}
	}
	return t
}

func (w wireItem) toModel() model.Item {
	return model.Item{
		Number:            w.NumeroItem,
		Description:       w.Descricao,
		MaterialOrService: w.MaterialOuServico,
		Quantity:          w.Quantidade,
		UnitValue:         w.ValorUnitarioEstimado,
	}
}
