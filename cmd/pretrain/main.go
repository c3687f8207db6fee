// Command pretrain runs ELECTRA-style adversarial pretraining of a generator
// and discriminator pair. Data is synthesized from random pre-tokenized
// sequences; a real corpus pipeline would plug in as a DataIterator.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gorgonia.org/tensor"

	"electra"
)

type args struct {
	config   string
	saveDir  string
	resume   string
	metrics  string
	logLevel string

	batches int
	vocab   int
	seqLen  int
	masks   int
	embed   int
	hidden  int
}

var flags args

var rootCmd = &cobra.Command{
	Use:          "pretrain",
	Short:        "Adversarial masked-LM pretraining (generator + discriminator)",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.config, "config", "", "JSON training config (defaults used when empty)")
	f.StringVar(&flags.saveDir, "save-dir", "checkpoints", "directory for checkpoints")
	f.StringVar(&flags.resume, "resume", "", "checkpoint directory to restore before training")
	f.StringVar(&flags.metrics, "metrics", "", "JSONL metrics file (disabled when empty)")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.IntVar(&flags.batches, "batches", 64, "synthetic batches per epoch")
	f.IntVar(&flags.vocab, "vocab", 1000, "vocabulary size")
	f.IntVar(&flags.seqLen, "seq", 64, "sequence length")
	f.IntVar(&flags.masks, "masks", 8, "masked positions per sequence")
	f.IntVar(&flags.embed, "embed", 64, "embedding dimension")
	f.IntVar(&flags.hidden, "hidden", 128, "hidden dimension")
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	level, err := log.ParseLevel(flags.logLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(level)

	cfg := electra.DefaultConfig()
	if flags.config != "" {
		if cfg, err = electra.ConfigFromJSON(flags.config); err != nil {
			return err
		}
	}
	device := electra.CPU()
	logger.Info("starting pretraining",
		"device", device.String(),
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize,
		"lr", cfg.LR,
	)

	generator := electra.NewSimpleMLM(flags.vocab, flags.embed, flags.hidden, flags.vocab, 2, int64(cfg.Seed))
	discriminator := electra.NewSimpleMLM(flags.vocab, flags.embed, flags.hidden, 2, 2, int64(cfg.Seed)+1)
	gOpt := electra.NewAdam(generator, cfg)
	dOpt := electra.NewAdam(discriminator, cfg)

	var metrics electra.MetricsWriter
	if flags.metrics != "" {
		w, err := electra.NewJSONLWriter(flags.metrics)
		if err != nil {
			return err
		}
		defer w.Close()
		metrics = w
	}

	rng := rand.New(rand.NewSource(int64(cfg.Seed)))
	data := electra.NewBatches(syntheticBatches(rng, flags.batches, cfg.BatchSize, flags.vocab, flags.seqLen, flags.masks))
	step := electra.NewAdversarialStep(generator, discriminator, gOpt, dOpt, metrics)
	trainer := electra.NewTrainer(cfg, step, data, flags.saveDir, device, logger)

	if err := trainer.Train(flags.resume); err != nil {
		return err
	}
	logger.Info("done", "steps", trainer.GlobalStep(), "save_dir", flags.saveDir)
	return nil
}

// syntheticBatches fabricates random pre-tokenized batches with the shape a
// corpus pipeline would produce: every masked slot holds the true token id
// and full weight, segments split halfway, all positions unpadded.
func syntheticBatches(rng *rand.Rand, n, batchSize, vocab, seqLen, masks int) []*electra.Batch {
	out := make([]*electra.Batch, n)
	for i := range out {
		ids := make([]int, batchSize*seqLen)
		segs := make([]int, batchSize*seqLen)
		mask := make([]float32, batchSize*seqLen)
		mpos := make([]int, batchSize*masks)
		mids := make([]int, batchSize*masks)
		weights := make([]float32, batchSize*masks)
		isNext := make([]int, batchSize)

		for b := 0; b < batchSize; b++ {
			for s := 0; s < seqLen; s++ {
				ids[b*seqLen+s] = rng.Intn(vocab)
				if s >= seqLen/2 {
					segs[b*seqLen+s] = 1
				}
				mask[b*seqLen+s] = 1
			}
			for m := 0; m < masks; m++ {
				pos := rng.Intn(seqLen)
				mpos[b*masks+m] = pos
				mids[b*masks+m] = ids[b*seqLen+pos]
				weights[b*masks+m] = 1
			}
			isNext[b] = rng.Intn(2)
		}
		out[i] = &electra.Batch{
			InputIDs:        tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(ids)),
			SegmentIDs:      tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(segs)),
			InputMask:       tensor.New(tensor.WithShape(batchSize, seqLen), tensor.WithBacking(mask)),
			MaskedIDs:       tensor.New(tensor.WithShape(batchSize, masks), tensor.WithBacking(mids)),
			MaskedPositions: tensor.New(tensor.WithShape(batchSize, masks), tensor.WithBacking(mpos)),
			MaskedWeights:   tensor.New(tensor.WithShape(batchSize, masks), tensor.WithBacking(weights)),
			IsNext:          tensor.New(tensor.WithShape(batchSize), tensor.WithBacking(isNext)),
		}
	}
	return out
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
