package types

// Model is a diffusion model folder discovered under the models directory.
type Model struct {
	// Stable identifier for the model (the folder name).
	// example: Z-Image-Turbo
	ID string `json:"id" example:"Z-Image-Turbo"`
	// Absolute path to the model folder on disk.
	// example: /home/user/models/Z-Image-Turbo
	Path string `json:"path" example:"/home/user/models/Z-Image-Turbo"`
	// Pipeline class declared in model_index.json, when present.
	// example: ZImagePipeline
	Pipeline string `json:"pipeline,omitempty" example:"ZImagePipeline"`
	// True when this is the configured default model path.
	Default bool `json:"default,omitempty"`
}

// GalleryItem describes one persisted artifact folder.
type GalleryItem struct {
	// Image file name inside the folder.
	// example: fox.png
	Name string `json:"name" example:"fox.png"`
	// Folder name relative to the gallery root.
	// example: fox_20261016_101500
	Folder string `json:"folder" example:"fox_20261016_101500"`
	// URL path serving the image.
	// example: /gallery/fox_20261016_101500/fox.png
	Path string `json:"path" example:"/gallery/fox_20261016_101500/fox.png"`
	// Parsed key/value lines of the metadata file.
	Info map[string]string `json:"info"`
}
