package imagegen

import (
	"fmt"
	"strings"
)

type phrasebook struct {
	titleAndType string
	titleOnly    string
	typeOnly     string
	style        string
	background   string
	extra        string
	preserve     string
	aspect       string
}

var phrases = map[string]phrasebook{
	"id": {
		titleAndType: "Edit foto agar tampil sebagai \"%s\" (jenis: %s).",
		titleOnly:    "Edit foto agar tampil sebagai \"%s\".",
		typeOnly:     "Edit foto agar menonjolkan jenis %s.",
		style:        "Gaya visual: %s.",
		background:   "Ganti/atur latar: %s.",
		extra:        "Instruksi tambahan: %s.",
		preserve:     "Pertahankan bentuk subjek asli, proporsi natural, tidak blur, tidak cacat.",
		aspect:       "Komposisi menyesuaikan rasio %s.",
	},
	"en": {
		titleAndType: "Edit the photo so it presents \"%s\" (type: %s).",
		titleOnly:    "Edit the photo so it presents \"%s\".",
		typeOnly:     "Edit the photo to highlight the %s.",
		style:        "Visual style: %s.",
		background:   "Background: %s.",
		extra:        "Additional instructions: %s.",
		preserve:     "Keep the original subject shape and natural proportions, no blur, no artifacts.",
		aspect:       "Compose for a %s aspect ratio.",
	},
}

// BuildInstruction turns req into the edit instruction sent to the editor.
func BuildInstruction(req Request) string {
	p, ok := phrases[strings.ToLower(strings.TrimSpace(req.Locale))]
	if !ok {
		p = phrases["en"]
	}
	parts := []string{}
	title := strings.TrimSpace(req.Prompt.Title)
	productType := strings.TrimSpace(req.Prompt.ProductType)
	switch {
	case title != "" && productType != "":
		parts = append(parts, fmt.Sprintf(p.titleAndType, title, productType))
	case title != "":
		parts = append(parts, fmt.Sprintf(p.titleOnly, title))
	case productType != "":
		parts = append(parts, fmt.Sprintf(p.typeOnly, productType))
	}
	if style := strings.TrimSpace(req.Prompt.Style); style != "" {
		parts = append(parts, fmt.Sprintf(p.style, style))
	}
	if background := strings.TrimSpace(req.Prompt.Background); background != "" {
		parts = append(parts, fmt.Sprintf(p.background, background))
	}
	if instructions := strings.TrimSpace(req.Prompt.Instructions); instructions != "" {
		parts = append(parts, fmt.Sprintf(p.extra, instructions))
	}
	parts = append(parts, p.preserve)
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		parts = append(parts, fmt.Sprintf(p.aspect, aspect))
	}
	return strings.Join(parts, " ")
}
