// Package electra implements an ELECTRA-style adversarial pretraining
// harness: a generator network learns to reconstruct masked tokens while a
// discriminator learns to tell which positions the generator got right.
// The package provides the training-loop drivers, the combined masked-LM +
// sentence-classification losses, checkpoint persistence and step/epoch
// bookkeeping. Model architectures and data pipelines are collaborators
// behind small interfaces; a reference model is included so the harness can
// run end to end.
package electra
